// Package remote provides an NFC capability fed by phones and browsers.
// Devices connect over WebSocket, register, and push the tags they read;
// every accepted tag is delivered to the manager's subscribers.
package remote

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nedpals/nfc-watch-agent/nfc"
	"github.com/nedpals/nfc-watch-agent/protocol"
)

const (
	// DefaultInactivityTimeout is how long a device may stay silent before
	// it is dropped.
	DefaultInactivityTimeout = 60 * time.Second

	// CleanupInterval is how often inactive devices are looked for.
	CleanupInterval = 10 * time.Second
)

var errClosed = fmt.Errorf("remote manager closed: %w", nfc.ErrInvalidState)

// Config configures a Manager.
type Config struct {
	InactivityTimeout time.Duration
	// Version is reported to registering devices.
	Version string
	Clock   nfc.Clock
	Logger  *log.Logger
}

// Manager tracks remote devices and implements nfc.Watcher over the tags
// they submit.
type Manager struct {
	dispatcher nfc.Dispatcher

	timeout  time.Duration
	version  string
	clock    nfc.Clock
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	devices map[string]*Device
	closed  bool
	stop    chan struct{}
}

// NewManager creates a manager and starts its inactivity cleanup.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		timeout: cfg.InactivityTimeout,
		version: cfg.Version,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		devices: make(map[string]*Device),
		stop:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	if m.timeout <= 0 {
		m.timeout = DefaultInactivityTimeout
	}
	if m.clock == nil {
		m.clock = nfc.NewRealClock()
	}
	if m.logger == nil {
		m.logger = log.New(io.Discard, "", 0)
	}

	ticker := m.clock.NewTicker(CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				m.CleanupInactive()
			case <-m.stop:
				return
			}
		}
	}()
	return m
}

// Watch registers handler for tags submitted by any device.
func (m *Manager) Watch(ctx context.Context, opts nfc.WatchOptions, handler nfc.MessageHandler) (nfc.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, nfc.WrapError(nfc.ErrCodeAborted, "Watch", "watch aborted", err)
	}

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("Watch: %w", errClosed)
	}
	return m.dispatcher.Add(opts, handler), nil
}

// Register adds a device and returns it with a fresh ID.
func (m *Manager) Register(req protocol.DeviceRegistrationRequest) (*Device, error) {
	if req.DeviceName == "" {
		return nil, fmt.Errorf("device name is required")
	}
	switch req.Platform {
	case "ios", "android", "web":
	default:
		return nil, fmt.Errorf("invalid platform: %s (must be 'ios', 'android', or 'web')", req.Platform)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}

	dev := &Device{
		ID:         uuid.New().String(),
		Name:       req.DeviceName,
		Platform:   req.Platform,
		AppVersion: req.AppVersion,
		lastSeen:   m.clock.Now(),
	}
	m.devices[dev.ID] = dev
	m.logger.Printf("Device registered: %s (%s, %s)", dev, req.Platform, req.AppVersion)
	return dev, nil
}

// Unregister removes a device and closes its connection.
func (m *Manager) Unregister(deviceID string) error {
	m.mu.Lock()
	dev, ok := m.devices[deviceID]
	delete(m.devices, deviceID)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("device not found: %s", deviceID)
	}
	dev.close()
	m.logger.Printf("Device unregistered: %s", dev)
	return nil
}

// Device returns a registered device by ID.
func (m *Manager) Device(deviceID string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dev, ok := m.devices[deviceID]
	return dev, ok
}

// Devices returns the registered devices ordered by name.
func (m *Manager) Devices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Device, 0, len(m.devices))
	for _, dev := range m.devices {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SubmitTag converts a tag read by a device and delivers it to every
// matching subscriber. It returns the number of subscribers reached.
func (m *Manager) SubmitTag(deviceID string, data protocol.TagData) (int, error) {
	dev, ok := m.Device(deviceID)
	if !ok {
		return 0, fmt.Errorf("device not found: %s", deviceID)
	}
	m.touch(dev)

	msg, err := ToMessage(data)
	if err != nil {
		return 0, fmt.Errorf("failed to convert tag data: %w", err)
	}
	n := m.dispatcher.Deliver(msg)
	m.logger.Printf("Tag %s from %s: %d records, delivered to %d subscribers", msg.SerialNumber, dev, len(msg.Records), n)
	return n, nil
}

// Heartbeat marks a device as alive.
func (m *Manager) Heartbeat(deviceID string) error {
	dev, ok := m.Device(deviceID)
	if !ok {
		return fmt.Errorf("device not found: %s", deviceID)
	}
	m.touch(dev)
	return nil
}

func (m *Manager) touch(dev *Device) {
	dev.mu.Lock()
	dev.lastSeen = m.clock.Now()
	dev.mu.Unlock()
}

// CleanupInactive drops devices that have been silent longer than the
// inactivity timeout and returns how many were dropped.
func (m *Manager) CleanupInactive() int {
	now := m.clock.Now()

	m.mu.Lock()
	var stale []*Device
	for id, dev := range m.devices {
		if idle := now.Sub(dev.LastSeen()); idle > m.timeout {
			m.logger.Printf("Dropping inactive device: %s (last seen %v ago)", dev, idle)
			stale = append(stale, dev)
			delete(m.devices, id)
		}
	}
	m.mu.Unlock()

	for _, dev := range stale {
		dev.close()
	}
	return len(stale)
}

// Close drops every device and stops the cleanup routine. Existing
// subscriptions stay valid but receive nothing more.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	devices := m.devices
	m.devices = make(map[string]*Device)
	m.mu.Unlock()

	close(m.stop)
	for _, dev := range devices {
		dev.close()
	}
	m.logger.Println("Manager closed")
}
