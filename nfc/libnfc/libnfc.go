// Package libnfc provides an NFC capability backed by libnfc and
// libfreefare. MIFARE Ultralight/NTAG and MIFARE Classic tags formatted
// for NDEF are read; other tags are reported with their UID only.
package libnfc

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/clausecker/freefare"
	gonfc "github.com/clausecker/nfc/v2"

	"github.com/nedpals/nfc-watch-agent/nfc"
)

// publicKey is the NFC Forum public key A of NDEF sectors.
var publicKey = [6]byte{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}

// Config configures a libnfc watcher.
type Config struct {
	// Device is the libnfc connection string. Empty selects the first
	// device libnfc finds.
	Device   string
	Interval time.Duration
	Logger   *log.Logger
}

// NewWatcher returns a Watcher that polls the configured device.
func NewWatcher(cfg Config) *nfc.Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return nfc.NewPoller(nfc.PollerConfig{
		Open: func() (nfc.TagSource, error) {
			return Open(cfg.Device, logger)
		},
		Interval: cfg.Interval,
		Logger:   logger,
	})
}

// ListDevices returns the connection strings of the devices libnfc can see.
func ListDevices() ([]string, error) {
	devices, err := gonfc.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// Source is an opened libnfc device.
type Source struct {
	mu     sync.Mutex
	dev    gonfc.Device
	logger *log.Logger
}

// Open opens the device at connstring and puts it in initiator mode.
func Open(connstring string, logger *log.Logger) (*Source, error) {
	dev, err := gonfc.Open(connstring)
	if err != nil {
		return nil, nfc.WrapError(nfc.ErrCodeDeviceNotFound, "Open", "no NFC device found", err)
	}
	if err := dev.InitiatorInit(); err != nil {
		dev.Close()
		return nil, nfc.NewNotReadableError("Open", fmt.Errorf("initiator init: %w", err))
	}
	logger.Printf("Opened device %s (%s)", dev.String(), dev.Connection())
	return &Source{dev: dev, logger: logger}, nil
}

// Tags lists the tags libfreefare recognizes in the field.
func (s *Source) Tags() ([]nfc.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ffTags, err := freefare.GetTags(s.dev)
	if err != nil {
		return nil, fmt.Errorf("freefare.GetTags: %w", err)
	}

	tags := make([]nfc.Tag, 0, len(ffTags))
	for _, ffTag := range ffTags {
		uid, err := hex.DecodeString(strings.TrimSpace(ffTag.UID()))
		if err != nil {
			s.logger.Printf("Skipping tag with malformed UID %q: %v", ffTag.UID(), err)
			continue
		}
		switch t := ffTag.(type) {
		case freefare.UltralightTag:
			tags = append(tags, &ultralightTag{uid: uid, tag: t, mu: &s.mu})
		case freefare.ClassicTag:
			tags = append(tags, &classicTag{uid: uid, tag: t, mu: &s.mu})
		default:
			tags = append(tags, &opaqueTag{uid: uid})
		}
	}
	return tags, nil
}

// Close releases the device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Close()
}

type ultralightTag struct {
	uid []byte
	tag freefare.UltralightTag
	mu  *sync.Mutex
}

func (t *ultralightTag) UID() []byte { return t.uid }

// ReadNDEF reads the capability container on page 3, then the data area
// from page 4 until the NDEF TLV is complete.
func (t *ultralightTag) ReadNDEF() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.tag.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer t.tag.Disconnect()

	cc, err := t.tag.ReadPage(3)
	if err != nil {
		return nil, fmt.Errorf("read capability container: %w", err)
	}
	if cc[0] != 0xE1 {
		return nil, nil
	}

	pages := int(cc[2]) * 8 / 4
	var area []byte
	for i := 0; i < pages; i++ {
		page, err := t.tag.ReadPage(byte(4 + i))
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", 4+i, err)
		}
		area = append(area, page[:]...)
		if size, ok := nfc.NDEFAreaSize(area); ok && len(area) >= size {
			break
		}
	}
	return nfc.ExtractNDEF(area)
}

type classicTag struct {
	uid []byte
	tag freefare.ClassicTag
	mu  *sync.Mutex
}

func (t *classicTag) UID() []byte { return t.uid }

// ReadNDEF reads the NFC Forum application listed in the MAD.
func (t *classicTag) ReadNDEF() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.tag.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer t.tag.Disconnect()

	mad, err := t.tag.ReadMad()
	if err != nil {
		return nil, fmt.Errorf("read MAD: %w", err)
	}

	buf := make([]byte, 4096)
	n, err := t.tag.ReadApplication(mad, freefare.MadNFCForumAid, buf, publicKey, int(freefare.KeyA))
	if err != nil {
		return nil, fmt.Errorf("read NDEF application: %w", err)
	}
	return nfc.ExtractNDEF(buf[:n])
}

type opaqueTag struct {
	uid []byte
}

func (t *opaqueTag) UID() []byte               { return t.uid }
func (t *opaqueTag) ReadNDEF() ([]byte, error) { return nil, nil }
