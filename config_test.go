package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nedpals/nfc-watch-agent/nfc"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.Mode != nfc.ModeAny || cfg.Provider != ProviderLibNFC || cfg.Port != 18080 || !cfg.MDNS {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Sound || cfg.Verbose || cfg.URL != "" {
		t.Errorf("Expected sound and verbose off and no URL pattern: %+v", cfg)
	}
}

func TestParseConfig_Flags(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-src", "https://example.com/*",
		"-recordtype", "url",
		"-mediatype", "application/json",
		"-mode", "web-nfc-only",
		"-sound", "-verbose",
		"-provider", "pcsc",
		"-port", "9000",
		"-nats-url", "nats://127.0.0.1:4222",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.URL != "https://example.com/*" || cfg.RecordType != "url" || cfg.MediaType != "application/json" {
		t.Errorf("Unexpected filter fields: %+v", cfg.Config)
	}
	if cfg.Mode != nfc.ModeWebNFCOnly || !cfg.Sound || !cfg.Verbose {
		t.Errorf("Unexpected reader fields: %+v", cfg.Config)
	}
	if cfg.Provider != ProviderPCSC || cfg.Port != 9000 || cfg.NATSURL != "nats://127.0.0.1:4222" {
		t.Errorf("Unexpected agent fields: %+v", cfg)
	}
}

func TestParseConfig_FileAndOverrides(t *testing.T) {
	path := writeConfigFile(t, `
src = "https://file.example/*"
recordtype = "text"
sound = true
provider = "remote"
port = 7000
api-secret = "from-file"
`)

	cfg, err := parseConfig([]string{"-config", path, "-port", "7100", "-sound=false"}, io.Discard)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.URL != "https://file.example/*" || cfg.RecordType != "text" || cfg.APISecret != "from-file" {
		t.Errorf("Expected file values to be loaded: %+v", cfg)
	}
	if cfg.Provider != ProviderRemote {
		t.Errorf("Expected provider from file, got %q", cfg.Provider)
	}
	if cfg.Port != 7100 {
		t.Errorf("Expected -port to override the file, got %d", cfg.Port)
	}
	if cfg.Sound {
		t.Error("Expected -sound=false to override the file")
	}
	if cfg.Mode != nfc.ModeAny {
		t.Errorf("Expected default mode to survive, got %q", cfg.Mode)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) []string
		want string
	}{
		{
			name: "unknown provider",
			args: func(*testing.T) []string { return []string{"-provider", "bluetooth"} },
			want: "unknown provider",
		},
		{
			name: "unknown file key",
			args: func(t *testing.T) []string {
				return []string{"-config", writeConfigFile(t, "colour = \"red\"\n")}
			},
			want: "unknown keys",
		},
		{
			name: "missing file",
			args: func(*testing.T) []string { return []string{"-config", "/nonexistent/agent.toml"} },
			want: "failed to load config",
		},
		{
			name: "bad flag",
			args: func(*testing.T) []string { return []string{"-port", "many"} },
			want: "invalid value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig(tt.args(t), io.Discard)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseConfig_HelpAndVersion(t *testing.T) {
	if _, err := parseConfig([]string{"-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("Expected flag.ErrHelp, got %v", err)
	}
	if _, err := parseConfig([]string{"-version"}, io.Discard); !errors.Is(err, errVersion) {
		t.Errorf("Expected errVersion, got %v", err)
	}
}
