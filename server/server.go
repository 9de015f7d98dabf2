// Package server exposes a reader over HTTP: a health check, a config
// endpoint, a WebSocket stream of reader events, and the remote device
// endpoint. The server is advertised over mDNS.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/nedpals/nfc-watch-agent/event"
	"github.com/nedpals/nfc-watch-agent/reader"
	"github.com/nedpals/nfc-watch-agent/tls"
)

// Config holds the server configuration
type Config struct {
	Reader *reader.Reader
	// Events is the target reader events are streamed from. It defaults
	// to the reader itself; pass an ancestor to stream every reader
	// attached under it.
	Events *event.Target
	// Device serves remote NFC devices at /device when set.
	Device http.Handler
	Port   int
	// APISecret, when set, must be passed as ?secret= to open /ws.
	APISecret string
	// TLS enables HTTPS with certificates from the manager.
	TLS         *tls.Manager
	DisableMDNS bool
	Version     string
	Logger      *log.Logger
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config   Config
	hub      *hub
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu         sync.Mutex
	httpServer *http.Server
	mdnsServer *zeroconf.Server
	unforward  func()
}

// New creates a server and starts forwarding reader events to its
// WebSocket clients.
func New(config Config) *Server {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}
	if config.Events == nil && config.Reader != nil {
		config.Events = config.Reader.Target
	}

	s := &Server{
		config: config,
		hub:    newHub(config.Logger),
		logger: config.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if config.Events != nil {
		s.unforward = s.hub.forward(config.Events)
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(RouteHealth, enableCORS(s.handleHealth))
	mux.HandleFunc(RouteConfig, enableCORS(s.handleConfig))
	mux.HandleFunc(RouteEvents, s.handleEvents)
	if s.config.Device != nil {
		mux.Handle(RouteDevice, s.config.Device)
	}
	if s.config.TLS != nil {
		mux.Handle(RouteCA, enableCORS(s.config.TLS.CAHandler().ServeHTTP))
	}
	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("NFC Watch Agent running"))
	}))
	return mux
}

// Start listens on the configured port and serves until ctx is done. It
// returns early if the listener cannot be opened.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var certFile, keyFile string
	if s.config.TLS != nil {
		var err error
		certFile, keyFile, err = s.config.TLS.Ensure()
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to prepare TLS certificates: %w", err)
		}
	}

	httpServer := &http.Server{Handler: s.Handler()}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Listening on %s (tls=%v)", ln.Addr(), s.config.TLS != nil)
		if s.config.TLS != nil {
			errCh <- httpServer.ServeTLS(ln, certFile, keyFile)
		} else {
			errCh <- httpServer.Serve(ln)
		}
	}()

	if !s.config.DisableMDNS {
		if err := s.startMDNS(); err != nil {
			s.logger.Printf("Warning: failed to start mDNS service: %v", err)
			s.logger.Printf("Auto-discovery will not be available, but the server will continue normally")
		}
	}

	select {
	case err := <-errCh:
		s.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.Stop()
		return nil
	}
}

// Stop shuts the server down and disconnects all clients. It is safe to
// call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		s.logger.Printf("mDNS service stopped")
	}
	if s.unforward != nil {
		s.unforward()
		s.unforward = nil
	}
	s.hub.closeAll()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Printf("Server shutdown error: %v", err)
		}
		s.httpServer = nil
	}
}

// Clients returns the number of connected event clients.
func (s *Server) Clients() int {
	return s.hub.count()
}

// startMDNS registers the agent so pages and phones on the LAN can find it.
func (s *Server) startMDNS() error {
	txt := []string{
		"version=" + s.config.Version,
		"events=" + RouteEvents,
		fmt.Sprintf("tls=%v", s.config.TLS != nil),
	}
	if s.config.Device != nil {
		txt = append(txt, "device="+RouteDevice)
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mu.Lock()
	s.mdnsServer = server
	s.mu.Unlock()
	s.logger.Printf("mDNS service registered: %s on port %d", MDNSServiceName, s.config.Port)
	return nil
}

// enableCORS wraps a handler with CORS headers and answers preflights.
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}
