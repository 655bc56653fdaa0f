package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type nested struct {
	Rate float64 `yaml:"rate" default:"1000" validate:"gt=0"`
}

type testConfig struct {
	Name    string        `yaml:"name" validate:"required"`
	Level   string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Timeout time.Duration `yaml:"timeout" default:"2s"`
	Items   []string      `yaml:"items" validate:"min=1,max=2"`
	Nested  nested        `yaml:"nested"`

	rejectAll bool
}

func (c *testConfig) Validate() error {
	if c.rejectAll {
		return errors.New("rejected")
	}
	return nil
}

func TestDecode_Defaults(t *testing.T) {
	var c testConfig
	if err := Decode([]byte("name: a\nitems: [x]\n"), &c); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if c.Level != "info" || c.Timeout != 2*time.Second || c.Nested.Rate != 1000 {
		t.Errorf("defaults not applied: %+v", c)
	}
}

func TestDecode_KeepsExplicitValues(t *testing.T) {
	var c testConfig
	yml := "name: a\nlevel: debug\ntimeout: 150ms\nitems: [x, y]\nnested:\n  rate: 5\n"
	if err := Decode([]byte(yml), &c); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if c.Level != "debug" || c.Timeout != 150*time.Millisecond || c.Nested.Rate != 5 {
		t.Errorf("explicit values overridden: %+v", c)
	}
}

func TestDecode_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{"required", "items: [x]\n", "name is required"},
		{"oneof", "name: a\nlevel: loud\nitems: [x]\n", "level must be one of: debug, info, warn, error"},
		{"min entries", "name: a\nitems: []\n", "items must have at least 1 entries"},
		{"max entries", "name: a\nitems: [x, y, z]\n", "items must have at most 2 entries"},
		{"nested", "name: a\nitems: [x]\nnested:\n  rate: -1\n", "nested.rate must be greater than 0"},
		{"malformed", "name: [\n", "parsing configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c testConfig
			err := Decode([]byte(tt.yml), &c)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Decode() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestPrepare_CallsValidate(t *testing.T) {
	c := testConfig{Name: "a", Items: []string{"x"}, rejectAll: true}
	if err := Prepare(&c); err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Errorf("Prepare() error = %v, want Validate error", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("name: file\nitems: [x]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var c testConfig
	if err := Load(path, &c); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Name != "file" {
		t.Errorf("Name = %q, want file", c.Name)
	}

	if err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &c); err == nil {
		t.Errorf("Load() expected error for missing file")
	}
}
