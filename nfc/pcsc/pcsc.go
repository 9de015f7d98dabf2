// Package pcsc provides an NFC capability backed by a PC/SC contactless
// reader such as the ACR122U. NFC Forum Type 2 tags are read through the
// reader's READ BINARY pseudo-APDU.
package pcsc

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ebfe/scard"

	"github.com/nedpals/nfc-watch-agent/nfc"
)

// Config configures a PC/SC watcher.
type Config struct {
	// Reader is the PC/SC reader name. Empty selects the first
	// contactless reader.
	Reader   string
	Interval time.Duration
	Logger   *log.Logger
}

// NewWatcher returns a Watcher that polls the configured reader.
func NewWatcher(cfg Config) *nfc.Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return nfc.NewPoller(nfc.PollerConfig{
		Open: func() (nfc.TagSource, error) {
			return Open(cfg.Reader, logger)
		},
		Interval: cfg.Interval,
		Logger:   logger,
	})
}

// Transmitter sends an APDU to the card in the field.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Source is an opened PC/SC reader.
type Source struct {
	mu     sync.Mutex
	ctx    *scard.Context
	reader string
	logger *log.Logger

	card      *scard.Card
	lastCount uint16
	last      []nfc.Tag
}

// Open establishes a PC/SC context and selects a reader.
func Open(reader string, logger *log.Logger) (*Source, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, nfc.NewNotReadableError("Open", fmt.Errorf("failed to establish PC/SC context: %w", err))
	}

	if reader == "" {
		readers, err := ctx.ListReaders()
		if err != nil {
			ctx.Release()
			return nil, nfc.WrapError(nfc.ErrCodeDeviceNotFound, "Open", "no NFC device found", err)
		}
		readers = contactlessReaders(readers)
		if len(readers) == 0 {
			ctx.Release()
			return nil, nfc.ErrDeviceNotFound
		}
		reader = readers[0]
	}

	logger.Printf("Using reader %s", reader)
	return &Source{ctx: ctx, reader: reader, logger: logger}, nil
}

// Tags reports the card in the field, if any. The reader's event counter
// tells whether the card is the same one seen on the previous poll.
func (s *Source) Tags() ([]nfc.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := []scard.ReaderState{{Reader: s.reader, CurrentState: scard.StateUnaware}}
	if err := s.ctx.GetStatusChange(states, 0); err != nil && !isTimeout(err) {
		return nil, fmt.Errorf("GetStatusChange: %w", err)
	}

	state := states[0].EventState
	count := uint16(state >> 16)
	if state&scard.StatePresent == 0 {
		s.disconnect()
		return nil, nil
	}
	if s.card != nil && count == s.lastCount {
		return s.last, nil
	}

	s.disconnect()
	card, err := s.ctx.Connect(s.reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		if isCardRemoved(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("connect to %s: %w", s.reader, err)
	}

	uid, err := readUID(card)
	if err != nil {
		card.Disconnect(scard.LeaveCard)
		return nil, err
	}

	s.card = card
	s.lastCount = count
	s.last = []nfc.Tag{&type2Tag{uid: uid, card: &lockedCard{mu: &s.mu, card: card}}}
	return s.last, nil
}

// disconnect expects mu to be held.
func (s *Source) disconnect() {
	if s.card != nil {
		s.card.Disconnect(scard.LeaveCard)
		s.card = nil
	}
	s.last = nil
}

// Close disconnects the card and releases the PC/SC context.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disconnect()
	if err := s.ctx.Release(); err != nil {
		return fmt.Errorf("failed to release PC/SC context: %w", err)
	}
	return nil
}

type lockedCard struct {
	mu   *sync.Mutex
	card *scard.Card
}

func (c *lockedCard) Transmit(cmd []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.card.Transmit(cmd)
}

func readUID(t Transmitter) ([]byte, error) {
	raw, err := t.Transmit(getUIDAPDU())
	if err != nil {
		return nil, fmt.Errorf("GET UID failed: %w", err)
	}
	resp, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err()
	}
	return resp.data, nil
}

type type2Tag struct {
	uid  []byte
	card Transmitter
}

func (t *type2Tag) UID() []byte { return t.uid }

// ReadNDEF reads the capability container and the data area four pages at
// a time until the NDEF TLV is complete.
func (t *type2Tag) ReadNDEF() ([]byte, error) {
	return readType2(t.card)
}

func readType2(t Transmitter) ([]byte, error) {
	head, err := readPages(t, 3)
	if err != nil {
		return nil, fmt.Errorf("read capability container: %w", err)
	}
	if head[0] != 0xE1 {
		return nil, nil
	}

	size := int(head[2]) * 8
	area := append([]byte(nil), head[4:]...)
	for page := 7; len(area) < size; page += 4 {
		if want, ok := nfc.NDEFAreaSize(area); ok && len(area) >= want {
			break
		}
		block, err := readPages(t, byte(page))
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", page, err)
		}
		area = append(area, block...)
	}
	if len(area) > size {
		area = area[:size]
	}
	return nfc.ExtractNDEF(area)
}

// readPages returns the 16 bytes of the four pages starting at page.
func readPages(t Transmitter, page byte) ([]byte, error) {
	raw, err := t.Transmit(readBinaryAPDU(page, 16))
	if err != nil {
		return nil, err
	}
	resp, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.err()
	}
	if len(resp.data) < 16 {
		return nil, fmt.Errorf("short read: %d bytes", len(resp.data))
	}
	return resp.data[:16], nil
}

func contactlessReaders(readers []string) []string {
	var out []string
	for _, r := range readers {
		if strings.Contains(strings.ToUpper(r), "SAM") {
			continue
		}
		out = append(out, r)
	}
	return out
}

func isTimeout(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func isCardRemoved(err error) bool {
	if errors.Is(err, scard.ErrRemovedCard) || errors.Is(err, scard.ErrNoSmartcard) {
		return true
	}
	errLower := strings.ToLower(err.Error())
	return strings.Contains(errLower, "removed") || strings.Contains(errLower, "no smart card")
}
