package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/nedpals/nfc-watch-agent/buildinfo"
	"github.com/nedpals/nfc-watch-agent/event"
	"github.com/nedpals/nfc-watch-agent/nfc"
	"github.com/nedpals/nfc-watch-agent/nfc/libnfc"
	"github.com/nedpals/nfc-watch-agent/nfc/pcsc"
	"github.com/nedpals/nfc-watch-agent/nfc/remote"
	"github.com/nedpals/nfc-watch-agent/publish"
	"github.com/nedpals/nfc-watch-agent/reader"
	"github.com/nedpals/nfc-watch-agent/server"
	"github.com/nedpals/nfc-watch-agent/tls"
	"github.com/nedpals/nfc-watch-agent/tone"
)

func newLogger(name string) *log.Logger {
	return log.New(os.Stderr, "["+name+"] ", log.LstdFlags)
}

// Agent wires a reader to its NFC provider, the HTTP server and the
// event publisher.
type Agent struct {
	Logger *log.Logger
	// Events is the root every reader event bubbles to.
	Events *event.Target

	mu        sync.Mutex
	cfg       Config
	Reader    *reader.Reader
	Server    *server.Server
	Remote    *remote.Manager
	publisher publish.Publisher
	unpublish func()
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewAgent(cfg Config) *Agent {
	return &Agent{
		Logger: newLogger("agent"),
		Events: event.NewTarget("agent"),
		cfg:    cfg,
	}
}

// Config returns the agent configuration. While running, the reader part
// reflects changes made through the config endpoint.
func (a *Agent) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.syncLocked()
	return a.cfg
}

// syncLocked copies the running reader's configuration into a.cfg.
func (a *Agent) syncLocked() {
	if a.Reader != nil {
		a.cfg.Config = a.Reader.Config()
	}
}

// Running reports whether the agent is started.
func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Reader != nil
}

// Start builds the provider, reader, publisher and server and starts
// serving in the background.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Reader != nil {
		return errors.New("agent is already running")
	}
	cfg := a.cfg

	watcher, remoteMgr, err := newWatcher(cfg)
	if err != nil {
		return err
	}

	pub, err := newPublisher(cfg)
	if err != nil {
		if remoteMgr != nil {
			remoteMgr.Close()
		}
		return err
	}
	a.publisher = pub
	a.unpublish = publish.Forward(a.Events, pub, newLogger("publish"))

	a.Reader = reader.New(ctx, watcher,
		reader.WithConfig(cfg.Config),
		reader.WithLogger(newLogger("reader")),
		reader.WithBeeper(tone.NewGenerator(nil, tone.WithLogger(newLogger("tone")))),
		reader.WithParent(a.Events),
	)
	a.Remote = remoteMgr

	srvCfg := server.Config{
		Reader:      a.Reader,
		Events:      a.Events,
		Port:        cfg.Port,
		APISecret:   cfg.APISecret,
		DisableMDNS: !cfg.MDNS,
		Version:     buildinfo.FullVersion(),
		Logger:      newLogger("server"),
	}
	if remoteMgr != nil {
		srvCfg.Device = remoteMgr
	}
	if cfg.TLS {
		dir, err := configDir()
		if err != nil {
			a.stopLocked()
			return err
		}
		srvCfg.TLS = tls.NewManager(tls.Config{Dir: dir, Logger: newLogger("tls")})
	}
	a.Server = server.New(srvCfg)

	serveCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go func(s *server.Server, done chan struct{}) {
		defer close(done)
		if err := s.Start(serveCtx); err != nil {
			a.Logger.Printf("Server error: %v", err)
		}
	}(a.Server, a.done)

	a.Logger.Printf("Agent started (provider=%s port=%d)", cfg.Provider, cfg.Port)
	return nil
}

// Stop shuts everything down. It is a no-op when the agent is not running.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Reader == nil {
		a.Logger.Println("Agent is not running")
		return
	}
	a.Logger.Println("Stopping agent...")
	a.stopLocked()
	a.Logger.Println("Agent stopped successfully")
}

func (a *Agent) stopLocked() {
	if a.cancel != nil {
		a.cancel()
		<-a.done
		a.cancel = nil
	}
	a.Server = nil

	if a.Reader != nil {
		a.syncLocked()
		if err := a.Reader.Close(); err != nil {
			a.Logger.Printf("Failed to close reader: %v", err)
		}
		a.Reader.SetParent(nil)
		a.Reader = nil
	}
	if a.Remote != nil {
		a.Remote.Close()
		a.Remote = nil
	}
	if a.unpublish != nil {
		a.unpublish()
		a.unpublish = nil
	}
	if a.publisher != nil {
		a.publisher.Close()
		a.publisher = nil
	}
}

// UpdateReader applies fn to the running reader's configuration and keeps
// the change for later restarts.
func (a *Agent) UpdateReader(ctx context.Context, fn func(*reader.Config)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.syncLocked()
	fn(&a.cfg.Config)
	next := a.cfg.Config
	if a.Reader == nil {
		return nil
	}
	return a.Reader.Update(ctx, func(c *reader.Config) { *c = next })
}

// Restart stops the agent and starts it again with fn applied to its
// configuration.
func (a *Agent) Restart(ctx context.Context, fn func(*Config)) error {
	a.Stop()
	a.mu.Lock()
	fn(&a.cfg)
	a.mu.Unlock()
	return a.Start(ctx)
}

// newWatcher returns the capability for cfg.Provider. The none provider
// yields a nil watcher, which the reader reports as unsupported.
func newWatcher(cfg Config) (nfc.Watcher, *remote.Manager, error) {
	switch cfg.Provider {
	case ProviderLibNFC:
		return libnfc.NewWatcher(libnfc.Config{Device: cfg.Device, Logger: newLogger("libnfc")}), nil, nil
	case ProviderPCSC:
		return pcsc.NewWatcher(pcsc.Config{Reader: cfg.Device, Logger: newLogger("pcsc")}), nil, nil
	case ProviderRemote:
		m := remote.NewManager(remote.Config{
			Version: buildinfo.FullVersion(),
			Logger:  newLogger("remote"),
		})
		return m, m, nil
	case ProviderNone:
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

func newPublisher(cfg Config) (publish.Publisher, error) {
	if cfg.NATSURL == "" {
		return publish.NoopPublisher{}, nil
	}
	return publish.NewNATSPublisher(cfg.NATSURL)
}

// configDir returns the per-user directory certificates are kept in.
func configDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to find config directory: %w", err)
	}
	return filepath.Join(base, buildinfo.Name), nil
}
