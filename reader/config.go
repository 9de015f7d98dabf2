package reader

import "github.com/nedpals/nfc-watch-agent/nfc"

// Config holds the six settable fields of a reader. Values are not
// validated; they are handed to the capability as they are.
type Config struct {
	// URL is the Web NFC id pattern. Empty matches every tag.
	URL        string        `json:"src" toml:"src"`
	RecordType string        `json:"recordType" toml:"recordtype"`
	MediaType  string        `json:"mediaType" toml:"mediatype"`
	Mode       nfc.WatchMode `json:"mode" toml:"mode"`
	Verbose    bool          `json:"verbose" toml:"verbose"`
	Sound      bool          `json:"sound" toml:"sound"`
}

// DefaultConfig returns the configuration of a reader built without options.
func DefaultConfig() Config {
	return Config{Mode: nfc.ModeAny}
}

// WatchOptions builds the options value passed to the capability.
func (c Config) WatchOptions() nfc.WatchOptions {
	return nfc.WatchOptions{
		URL:        c.URL,
		MediaType:  c.MediaType,
		RecordType: c.RecordType,
		Mode:       c.Mode,
	}
}

// Option configures a Reader at construction.
type Option func(*Reader)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(r *Reader) {
		r.cfg = cfg
	}
}

// WithURL sets the Web NFC id pattern.
func WithURL(url string) Option {
	return func(r *Reader) {
		r.cfg.URL = url
	}
}

// WithRecordType sets the record type filter.
func WithRecordType(recordType string) Option {
	return func(r *Reader) {
		r.cfg.RecordType = recordType
	}
}

// WithMediaType sets the media type filter.
func WithMediaType(mediaType string) Option {
	return func(r *Reader) {
		r.cfg.MediaType = mediaType
	}
}

// WithMode sets the watch mode.
func WithMode(mode nfc.WatchMode) Option {
	return func(r *Reader) {
		r.cfg.Mode = mode
	}
}

// WithVerbose enables status events.
func WithVerbose(verbose bool) Option {
	return func(r *Reader) {
		r.cfg.Verbose = verbose
	}
}

// WithSound enables the beep played before each record event.
func WithSound(sound bool) Option {
	return func(r *Reader) {
		r.cfg.Sound = sound
	}
}
