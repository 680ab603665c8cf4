package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults()
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemconv.yaml")
	raw := []byte("workers: 3\nauthor: builder\nextension: nbt\nlog_dir: ' ./logs '\nprogress_every_ms: 250\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Workers != 3 || got.Author != "builder" || got.Extension != ".nbt" || got.LogDir != "./logs" {
		t.Fatalf("got %+v", got)
	}
	if got.DataVersion != 2586 {
		t.Fatalf("data_version=%d want default 2586", got.DataVersion)
	}
	if got.ProgressEvery() != 250*time.Millisecond {
		t.Fatalf("ProgressEvery=%v", got.ProgressEvery())
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"zero_workers.yaml": "workers: 0\n",
		"no_ext.yaml":       "extension: ''\n",
		"bad_yaml.yaml":     "workers: [\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("missing file err=%v want not-exist", err)
	}
}
