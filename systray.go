package main

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"fyne.io/systray"

	"github.com/nedpals/nfc-watch-agent/buildinfo"
	"github.com/nedpals/nfc-watch-agent/event"
	"github.com/nedpals/nfc-watch-agent/nfc"
	"github.com/nedpals/nfc-watch-agent/nfc/libnfc"
	"github.com/nedpals/nfc-watch-agent/reader"
	"github.com/nedpals/nfc-watch-agent/server"
	"github.com/nedpals/nfc-watch-agent/tls"
)

const maxRecordTitle = 40

// SystrayApp manages the system tray interface for the agent
type SystrayApp struct {
	agent  *Agent
	ctx    context.Context
	logger *log.Logger

	mStatus     *systray.MenuItem
	mLastRecord *systray.MenuItem
	mEventsURL  *systray.MenuItem
	mCopyURL    *systray.MenuItem
	mSound      *systray.MenuItem
	mVerbose    *systray.MenuItem
	mModeAny    *systray.MenuItem
	mModeWebNFC *systray.MenuItem
	mDeviceMenu *systray.MenuItem
	mRefresh    *systray.MenuItem
	mStart      *systray.MenuItem
	mStop       *systray.MenuItem
	mQuit       *systray.MenuItem

	devMu       sync.Mutex
	deviceItems map[string]*systray.MenuItem
	listeners   []func()
}

// NewSystrayApp creates a new systray application
func NewSystrayApp(agent *Agent) *SystrayApp {
	return &SystrayApp{
		agent:       agent,
		logger:      newLogger("systray"),
		deviceItems: make(map[string]*systray.MenuItem),
	}
}

// Run shows the tray and blocks until Quit is chosen or ctx is done.
func (s *SystrayApp) Run(ctx context.Context) {
	s.ctx = ctx
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(s.onReady, s.onExit)
}

func (s *SystrayApp) onReady() {
	s.setupUI()
	s.listen()
	go s.handleMenuEvents()

	go func() {
		if err := s.agent.Start(s.ctx); err != nil {
			s.logger.Printf("Failed to start agent: %v", err)
			s.setState("Failed to start", iconError)
			s.mStart.Enable()
		} else {
			s.setState("Running", iconRunning)
			s.mStop.Enable()
		}
		s.updateURL()
		s.updateDeviceList()
	}()
}

func (s *SystrayApp) onExit() {
	for _, remove := range s.listeners {
		remove()
	}
	s.agent.Stop()
}

func (s *SystrayApp) setupUI() {
	cfg := s.agent.Config()

	systray.SetIcon(iconIdle)
	systray.SetTitle(buildinfo.DisplayName)
	systray.SetTooltip(buildinfo.Description)

	s.mStatus = systray.AddMenuItem("Starting...", "Agent status")
	s.mStatus.Disable()
	s.mLastRecord = systray.AddMenuItem("Last record: None", "Last record read")
	s.mLastRecord.Disable()

	systray.AddSeparator()

	s.mEventsURL = systray.AddMenuItem("Events: Not running", "WebSocket URL pages connect to")
	s.mEventsURL.Disable()
	s.mCopyURL = systray.AddMenuItem("Copy Events URL", "Copy the WebSocket URL to the clipboard")

	systray.AddSeparator()

	s.mSound = systray.AddMenuItemCheckbox("Sound", "Beep for every record read", cfg.Sound)
	s.mVerbose = systray.AddMenuItemCheckbox("Verbose", "Emit reader-status events", cfg.Verbose)
	mMode := systray.AddMenuItem("Watch Mode", "Which tags are forwarded")
	s.mModeAny = mMode.AddSubMenuItemCheckbox("Any NDEF tag", "Forward every tag", cfg.Mode != nfc.ModeWebNFCOnly)
	s.mModeWebNFC = mMode.AddSubMenuItemCheckbox("Web NFC tags only", "Forward tags carrying a Web NFC id", cfg.Mode == nfc.ModeWebNFCOnly)

	s.mDeviceMenu = systray.AddMenuItem("Device", "Select NFC device")
	s.mRefresh = s.mDeviceMenu.AddSubMenuItem("Refresh Devices", "Refresh device list")
	if cfg.Provider != ProviderLibNFC {
		s.mDeviceMenu.Disable()
	}

	systray.AddSeparator()

	s.mStart = systray.AddMenuItem("Start Agent", "Start the agent")
	s.mStop = systray.AddMenuItem("Stop Agent", "Stop the agent")
	s.mStart.Disable()
	s.mStop.Disable()

	systray.AddSeparator()
	s.mQuit = systray.AddMenuItem("Quit", "Quit the application")
}

// listen mirrors reader events in the menu. Listeners must not call back
// into the reader.
func (s *SystrayApp) listen() {
	s.listeners = append(s.listeners,
		s.agent.Events.AddListener(reader.EventWatch, func(e *event.Event) {
			if d, ok := e.Detail.(reader.WatchDetail); ok {
				s.mLastRecord.SetTitle("Last record: " + recordTitle(d.Record))
				systray.SetIcon(iconRead)
			}
		}),
		s.agent.Events.AddListener(reader.EventStatus, func(e *event.Event) {
			if d, ok := e.Detail.(reader.StatusDetail); ok {
				s.mStatus.SetTitle(d.Status.Message)
				if d.Status.Type == reader.StatusError {
					systray.SetIcon(iconError)
				}
			}
		}),
	)
}

func (s *SystrayApp) handleMenuEvents() {
	for {
		select {
		case <-s.mStart.ClickedCh:
			s.handleStart()
		case <-s.mStop.ClickedCh:
			s.handleStop()
		case <-s.mCopyURL.ClickedCh:
			if err := copyToClipboard(s.eventsURL()); err != nil {
				s.logger.Printf("Failed to copy to clipboard: %v", err)
			}
		case <-s.mSound.ClickedCh:
			s.update("sound", func(c *reader.Config) { c.Sound = !c.Sound })
		case <-s.mVerbose.ClickedCh:
			s.update("verbose", func(c *reader.Config) { c.Verbose = !c.Verbose })
		case <-s.mModeAny.ClickedCh:
			s.update("mode", func(c *reader.Config) { c.Mode = nfc.ModeAny })
		case <-s.mModeWebNFC.ClickedCh:
			s.update("mode", func(c *reader.Config) { c.Mode = nfc.ModeWebNFCOnly })
		case <-s.mRefresh.ClickedCh:
			s.updateDeviceList()
		case <-s.mQuit.ClickedCh:
			systray.Quit()
			return
		}
		s.handleDeviceSelection()
	}
}

func (s *SystrayApp) handleStart() {
	if err := s.agent.Start(s.ctx); err != nil {
		s.logger.Printf("Failed to start agent: %v", err)
		s.setState("Failed to start", iconError)
		return
	}
	s.setState("Running", iconRunning)
	s.updateURL()
	s.mStart.Disable()
	s.mStop.Enable()
}

func (s *SystrayApp) handleStop() {
	s.agent.Stop()
	s.setState("Stopped", iconIdle)
	s.mEventsURL.SetTitle("Events: Not running")
	s.mStop.Disable()
	s.mStart.Enable()
}

// update changes the reader configuration and syncs the checkboxes.
func (s *SystrayApp) update(what string, fn func(*reader.Config)) {
	if err := s.agent.UpdateReader(s.ctx, fn); err != nil {
		s.logger.Printf("Failed to update %s: %v", what, err)
	}
	cfg := s.agent.Config()
	setChecked(s.mSound, cfg.Sound)
	setChecked(s.mVerbose, cfg.Verbose)
	setChecked(s.mModeAny, cfg.Mode != nfc.ModeWebNFCOnly)
	setChecked(s.mModeWebNFC, cfg.Mode == nfc.ModeWebNFCOnly)
}

// devices returns a snapshot of the device menu items.
func (s *SystrayApp) devices() map[string]*systray.MenuItem {
	s.devMu.Lock()
	defer s.devMu.Unlock()
	out := make(map[string]*systray.MenuItem, len(s.deviceItems))
	for name, item := range s.deviceItems {
		out[name] = item
	}
	return out
}

func (s *SystrayApp) handleDeviceSelection() {
	for name, item := range s.devices() {
		select {
		case <-item.ClickedCh:
			s.switchDevice(name)
		default:
		}
	}
}

func (s *SystrayApp) switchDevice(name string) {
	if s.agent.Config().Device == name {
		return
	}
	for n, item := range s.devices() {
		setChecked(item, n == name)
	}
	if err := s.agent.Restart(s.ctx, func(c *Config) { c.Device = name }); err != nil {
		s.logger.Printf("Failed to switch to %s: %v", name, err)
		s.setState("Failed to start", iconError)
		s.mStop.Disable()
		s.mStart.Enable()
		return
	}
	s.setState("Running", iconRunning)
	s.mStart.Disable()
	s.mStop.Enable()
}

func (s *SystrayApp) updateDeviceList() {
	if s.agent.Config().Provider != ProviderLibNFC {
		return
	}
	devices, err := libnfc.ListDevices()
	if err != nil {
		s.logger.Printf("Error listing devices: %v", err)
		return
	}
	current := s.agent.Config().Device

	s.devMu.Lock()
	defer s.devMu.Unlock()
	for _, item := range s.deviceItems {
		item.Hide()
	}
	s.deviceItems = make(map[string]*systray.MenuItem, len(devices))
	for i, name := range devices {
		checked := name == current || (current == "" && i == 0)
		s.deviceItems[name] = s.mDeviceMenu.AddSubMenuItemCheckbox(name, "Use this device", checked)
	}
}

func (s *SystrayApp) setState(title string, icon []byte) {
	s.mStatus.SetTitle(title)
	systray.SetIcon(icon)
}

func (s *SystrayApp) updateURL() {
	if !s.agent.Running() {
		return
	}
	s.mEventsURL.SetTitle("Events: " + s.eventsURL())
}

// eventsURL returns the /ws URL on the first LAN address.
func (s *SystrayApp) eventsURL() string {
	cfg := s.agent.Config()
	host := "localhost"
	if addrs, err := tls.LANAddrs(); err == nil && len(addrs) > 0 {
		host = addrs[0]
	}
	scheme := "ws"
	if cfg.TLS {
		scheme = "wss"
	}
	url := fmt.Sprintf("%s://%s:%d%s", scheme, host, cfg.Port, server.RouteEvents)
	if cfg.APISecret != "" {
		url += "?secret=" + cfg.APISecret
	}
	return url
}

func setChecked(item *systray.MenuItem, checked bool) {
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}

// recordTitle renders a record for the menu.
func recordTitle(rec nfc.Record) string {
	var text string
	switch rec.RecordType {
	case nfc.RecordTypeText, nfc.RecordTypeURL:
		text = rec.Text()
	case nfc.RecordTypeMIME:
		text = rec.MediaType
	default:
		text = fmt.Sprintf("%d bytes", len(rec.Data))
	}
	text = strings.Join(strings.Fields(text), " ")
	if len([]rune(text)) > maxRecordTitle {
		text = string([]rune(text)[:maxRecordTitle-1]) + "…"
	}
	return rec.RecordType + ": " + text
}

func copyToClipboard(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
