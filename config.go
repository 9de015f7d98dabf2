package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/nedpals/nfc-watch-agent/nfc"
	"github.com/nedpals/nfc-watch-agent/reader"
	"github.com/nedpals/nfc-watch-agent/server"
)

// NFC providers selectable with -provider.
const (
	ProviderLibNFC = "libnfc"
	ProviderPCSC   = "pcsc"
	ProviderRemote = "remote"
	ProviderNone   = "none"
)

// Config is the agent configuration. It is read from an optional TOML
// file; flags given on the command line override the file.
type Config struct {
	reader.Config

	Provider  string `toml:"provider"`
	Device    string `toml:"device"`
	Port      int    `toml:"port"`
	APISecret string `toml:"api-secret"`
	NATSURL   string `toml:"nats-url"`
	TLS       bool   `toml:"tls"`
	MDNS      bool   `toml:"mdns"`
	CLI       bool   `toml:"cli"`
}

func defaultConfig() Config {
	return Config{
		Config:   reader.DefaultConfig(),
		Provider: ProviderLibNFC,
		Port:     server.DefaultPort,
		MDNS:     true,
	}
}

// errVersion is returned by parseConfig when -version was given.
var errVersion = errors.New("version requested")

// parseConfig parses args, loading the file named by -config first.
func parseConfig(args []string, output io.Writer) (Config, error) {
	fs := flag.NewFlagSet("nfc-watch-agent", flag.ContinueOnError)
	fs.SetOutput(output)

	f := defaultConfig()
	var mode, configPath string
	var showVersion bool
	fs.StringVar(&f.URL, "src", f.URL, "Web NFC id pattern tags must match, e.g. https://example.com/*")
	fs.StringVar(&f.RecordType, "recordtype", f.RecordType, "Only forward records of this type")
	fs.StringVar(&f.MediaType, "mediatype", f.MediaType, "Only forward MIME records matching this media type")
	fs.StringVar(&mode, "mode", string(f.Mode), "Watch mode: any or web-nfc-only")
	fs.BoolVar(&f.Sound, "sound", f.Sound, "Beep for every record read")
	fs.BoolVar(&f.Verbose, "verbose", f.Verbose, "Emit reader-status events")
	fs.StringVar(&f.Provider, "provider", f.Provider, "NFC provider: libnfc, pcsc, remote or none")
	fs.StringVar(&f.Device, "device", f.Device, "libnfc connection string or PC/SC reader name (optional)")
	fs.IntVar(&f.Port, "port", f.Port, "Port to listen on")
	fs.StringVar(&f.APISecret, "api-secret", f.APISecret, "Secret clients must pass to /ws (optional)")
	fs.StringVar(&f.NATSURL, "nats-url", f.NATSURL, "Publish reader events to this NATS server (optional)")
	fs.BoolVar(&f.TLS, "tls", f.TLS, "Serve HTTPS with a locally trusted certificate")
	fs.BoolVar(&f.MDNS, "mdns", f.MDNS, "Advertise the agent over mDNS")
	fs.BoolVar(&f.CLI, "cli", f.CLI, "Run in CLI mode (default: system tray mode)")
	fs.StringVar(&configPath, "config", "", "Path to a TOML config file (optional)")
	fs.BoolVar(&showVersion, "version", false, "Print version information and exit")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if showVersion {
		return Config{}, errVersion
	}

	cfg := defaultConfig()
	if configPath != "" {
		md, err := toml.DecodeFile(configPath, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to load config %s: %w", configPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return Config{}, fmt.Errorf("unknown keys in %s: %s", configPath, strings.Join(keys, ", "))
		}
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "src":
			cfg.URL = f.URL
		case "recordtype":
			cfg.RecordType = f.RecordType
		case "mediatype":
			cfg.MediaType = f.MediaType
		case "mode":
			cfg.Mode = nfc.WatchMode(mode)
		case "sound":
			cfg.Sound = f.Sound
		case "verbose":
			cfg.Verbose = f.Verbose
		case "provider":
			cfg.Provider = f.Provider
		case "device":
			cfg.Device = f.Device
		case "port":
			cfg.Port = f.Port
		case "api-secret":
			cfg.APISecret = f.APISecret
		case "nats-url":
			cfg.NATSURL = f.NATSURL
		case "tls":
			cfg.TLS = f.TLS
		case "mdns":
			cfg.MDNS = f.MDNS
		case "cli":
			cfg.CLI = f.CLI
		}
	})

	switch cfg.Provider {
	case ProviderLibNFC, ProviderPCSC, ProviderRemote, ProviderNone:
	default:
		return Config{}, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return cfg, nil
}
