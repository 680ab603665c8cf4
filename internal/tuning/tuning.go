package tuning

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Workers     int    `yaml:"workers"`
	DataVersion int    `yaml:"data_version"`
	Author      string `yaml:"author"`
	Extension   string `yaml:"extension"`
	WriteJSON   bool   `yaml:"write_json"`

	LogDir  string `yaml:"log_dir"`
	IndexDB string `yaml:"index_db"`

	ProgressAddr    string `yaml:"progress_addr"`
	ProgressEveryMs int    `yaml:"progress_every_ms"`
}

func Defaults() Tuning {
	return Tuning{
		Workers:         runtime.NumCPU(),
		DataVersion:     2586,
		Author:          "Folfy_Blue",
		Extension:       ".nbt",
		ProgressEveryMs: 500,
	}
}

// Load overlays the YAML file at path on top of Defaults. An empty path
// returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.Extension = strings.TrimSpace(t.Extension)
	if t.Extension != "" && !strings.HasPrefix(t.Extension, ".") {
		t.Extension = "." + t.Extension
	}
	t.LogDir = strings.TrimSpace(t.LogDir)
	t.IndexDB = strings.TrimSpace(t.IndexDB)
	t.ProgressAddr = strings.TrimSpace(t.ProgressAddr)
}

func (t Tuning) Validate() error {
	if t.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", t.Workers)
	}
	if t.Extension == "" {
		return fmt.Errorf("extension must not be empty")
	}
	if t.DataVersion < 0 {
		return fmt.Errorf("data_version must be >= 0, got %d", t.DataVersion)
	}
	if t.ProgressEveryMs < 0 {
		return fmt.Errorf("progress_every_ms must be >= 0, got %d", t.ProgressEveryMs)
	}
	return nil
}

func (t Tuning) ProgressEvery() time.Duration {
	if t.ProgressEveryMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(t.ProgressEveryMs) * time.Millisecond
}
