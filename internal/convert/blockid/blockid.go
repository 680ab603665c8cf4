// Package blockid parses encoded block identifiers such as
// "ns:block_name[dir=up,lit=true]" into a base name and attributes.
package blockid

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var baseRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]+:[A-Za-z0-9_.\-/]+`)

// Property is one key=value attribute. Values are kept as text.
type Property struct {
	Key   string
	Value string
}

// ID is a parsed block identifier. Properties keep their source order.
type ID struct {
	Name       string
	Properties []Property
}

// ParseError reports an identifier that cannot be parsed. It is fatal to
// the source it came from.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse block id %q: %s", e.Input, e.Reason)
}

// Parse splits s into its base name and attribute list.
func Parse(s string) (ID, error) {
	base := baseRe.FindString(s)
	if base == "" {
		return ID{}, &ParseError{Input: s, Reason: "expected namespace:name"}
	}
	id := ID{Name: base}

	rest := s[len(base):]
	if rest == "" {
		return id, nil
	}
	if rest[0] != '[' || rest[len(rest)-1] != ']' {
		return ID{}, &ParseError{Input: s, Reason: fmt.Sprintf("unexpected trailing %q", rest)}
	}
	body := rest[1 : len(rest)-1]
	if strings.TrimSpace(body) == "" {
		return id, nil
	}

	seen := map[string]bool{}
	for _, pair := range strings.Split(body, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if !ok || k == "" {
			return ID{}, &ParseError{Input: s, Reason: fmt.Sprintf("bad attribute %q", pair)}
		}
		if seen[k] {
			return ID{}, &ParseError{Input: s, Reason: fmt.Sprintf("duplicate attribute %q", k)}
		}
		seen[k] = true
		id.Properties = append(id.Properties, Property{Key: k, Value: v})
	}
	return id, nil
}

// Key is a canonical form of id that ignores attribute order. Two IDs are
// structurally equal exactly when their keys are equal.
func (id ID) Key() string {
	if len(id.Properties) == 0 {
		return id.Name
	}
	props := make([]Property, len(id.Properties))
	copy(props, id.Properties)
	sort.Slice(props, func(i, j int) bool { return props[i].Key < props[j].Key })

	var b strings.Builder
	b.WriteString(id.Name)
	b.WriteByte('[')
	for i, p := range props {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	b.WriteByte(']')
	return b.String()
}

// String renders id in source order.
func (id ID) String() string {
	if len(id.Properties) == 0 {
		return id.Name
	}
	parts := make([]string, 0, len(id.Properties))
	for _, p := range id.Properties {
		parts = append(parts, p.Key+"="+p.Value)
	}
	return id.Name + "[" + strings.Join(parts, ",") + "]"
}
