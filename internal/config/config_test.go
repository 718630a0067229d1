package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mpyw/bceval/internal/config"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		check   func(t *testing.T, c *config.Config)
		wantErr string
	}{
		{
			name: "empty file keeps defaults",
			src:  "",
			check: func(t *testing.T, c *config.Config) {
				if !c.Resolver.Enabled || c.Resolver.Level != config.LevelVarOnly {
					t.Errorf("Resolver = %+v, want enabled varOnly", c.Resolver)
				}
				if c.Eval.MaxCallDepth != 16 || c.Eval.MaxVariants != 256 {
					t.Errorf("Eval = %+v, want 16/256", c.Eval)
				}
				if !c.Crawler.Enabled {
					t.Error("crawler disabled by default")
				}
			},
		},
		{
			name: "overrides",
			src: `
[resolver]
level = "full"
fail_fast = true

[eval]
max_variants = 8

[crawler]
enabled = false
workers = 3

[log]
verbosity = 2
file = "run.log"
`,
			check: func(t *testing.T, c *config.Config) {
				if c.Resolver.Level != config.LevelFull || !c.Resolver.FailFast || !c.Resolver.Enabled {
					t.Errorf("Resolver = %+v", c.Resolver)
				}
				if c.Eval.MaxVariants != 8 || c.Eval.MaxCallDepth != 16 {
					t.Errorf("Eval = %+v, want max_variants 8 and the default depth", c.Eval)
				}
				if c.Crawler.Enabled || c.Crawler.Workers != 3 {
					t.Errorf("Crawler = %+v", c.Crawler)
				}
				if c.Log.Verbosity != 2 || c.Log.File != "run.log" {
					t.Errorf("Log = %+v", c.Log)
				}
			},
		},
		{
			name:    "bad level",
			src:     "[resolver]\nlevel = \"loud\"\n",
			wantErr: "resolver.level",
		},
		{
			name:    "bad bounds",
			src:     "[eval]\nmax_call_depth = 0\nmax_variants = -1\n",
			wantErr: "eval.max_variants",
		},
		{
			name:    "syntax error",
			src:     "[eval\n",
			wantErr: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := config.Parse([]byte(tt.src))
			if tt.check == nil {
				if err == nil {
					t.Fatal("expected an error")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			tt.check(t, c)
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, config.FileName)
	if err := os.WriteFile(path, []byte("[eval]\nmax_call_depth = 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := config.FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c.Eval.MaxCallDepth != 4 {
		t.Errorf("MaxCallDepth = %d, want 4", c.Eval.MaxCallDepth)
	}
	if c.Path != path {
		t.Errorf("Path = %q, want %q", c.Path, path)
	}
}

func TestLoad_Error(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	if err := os.WriteFile(path, []byte("[resolver]\nlevel = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "parse error in") {
		t.Errorf("Load error = %v, want a parse error", err)
	}
}
