package remote

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nedpals/nfc-watch-agent/nfc"
	"github.com/nedpals/nfc-watch-agent/protocol"
)

func newTestManager(t *testing.T) (*Manager, *nfc.FakeClock) {
	t.Helper()
	clock := nfc.NewFakeClock(time.Unix(1700000000, 0))
	m := NewManager(Config{InactivityTimeout: time.Minute, Version: "test", Clock: clock})
	t.Cleanup(m.Close)
	return m, clock
}

func TestRegister(t *testing.T) {
	m, _ := newTestManager(t)

	tests := []struct {
		name    string
		req     protocol.DeviceRegistrationRequest
		wantErr bool
	}{
		{"valid", protocol.DeviceRegistrationRequest{DeviceName: "Pixel", Platform: "android"}, false},
		{"web", protocol.DeviceRegistrationRequest{DeviceName: "Chrome", Platform: "web"}, false},
		{"missing name", protocol.DeviceRegistrationRequest{Platform: "ios"}, true},
		{"bad platform", protocol.DeviceRegistrationRequest{DeviceName: "x", Platform: "symbian"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := m.Register(tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && dev.ID == "" {
				t.Error("Expected a device ID")
			}
		})
	}

	if n := len(m.Devices()); n != 2 {
		t.Errorf("Expected 2 devices, got %d", n)
	}
}

func TestSubmitTag_DeliversFilteredMessage(t *testing.T) {
	m, _ := newTestManager(t)
	dev, _ := m.Register(protocol.DeviceRegistrationRequest{DeviceName: "Pixel", Platform: "android"})

	var got []nfc.Message
	sub, err := m.Watch(context.Background(), nfc.WatchOptions{Mode: nfc.ModeAny, RecordType: nfc.RecordTypeText}, func(msg nfc.Message) {
		got = append(got, msg)
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer sub.Cancel()

	n, err := m.SubmitTag(dev.ID, protocol.TagData{
		UID: "04AABB",
		Records: []protocol.RecordInput{
			{RecordType: "text", Content: "hello"},
			{RecordType: "url", Content: "https://example.com"},
		},
	})
	if err != nil {
		t.Fatalf("SubmitTag failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected delivery to 1 subscriber, got %d", n)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(got))
	}
	msg := got[0]
	if msg.SerialNumber != "04:AA:BB" {
		t.Errorf("Expected serial 04:AA:BB, got %q", msg.SerialNumber)
	}
	if len(msg.Records) != 1 || msg.Records[0].Text() != "hello" || msg.Records[0].Lang != "en" {
		t.Errorf("Unexpected records: %+v", msg.Records)
	}
}

func TestSubmitTag_RawNDEF(t *testing.T) {
	raw, err := nfc.EncodeMessage("https://example.com/tag", []nfc.Record{{RecordType: nfc.RecordTypeURL, Data: []byte("https://example.com/a")}})
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}

	msg, err := ToMessage(protocol.TagData{UID: "01:02", RawNDEF: raw})
	if err != nil {
		t.Fatalf("ToMessage failed: %v", err)
	}
	if msg.URL != "https://example.com/tag" {
		t.Errorf("Expected URL from the web nfc record, got %q", msg.URL)
	}
	if len(msg.Records) != 1 || msg.Records[0].Text() != "https://example.com/a" {
		t.Errorf("Unexpected records: %+v", msg.Records)
	}
}

func TestToMessage_Errors(t *testing.T) {
	tests := []struct {
		name string
		data protocol.TagData
	}{
		{"missing uid", protocol.TagData{}},
		{"bad uid", protocol.TagData{UID: "XYZ"}},
		{"missing record type", protocol.TagData{UID: "01", Records: []protocol.RecordInput{{Content: "x"}}}},
		{"mime without media type", protocol.TagData{UID: "01", Records: []protocol.RecordInput{{RecordType: "mime"}}}},
		{"malformed ndef", protocol.TagData{UID: "01", RawNDEF: []byte{0xD1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ToMessage(tt.data); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestCleanupInactive(t *testing.T) {
	m, clock := newTestManager(t)
	quiet, _ := m.Register(protocol.DeviceRegistrationRequest{DeviceName: "quiet", Platform: "ios"})
	chatty, _ := m.Register(protocol.DeviceRegistrationRequest{DeviceName: "chatty", Platform: "ios"})

	clock.Advance(45 * time.Second)
	m.Heartbeat(chatty.ID)
	clock.Advance(30 * time.Second)

	// The background routine may already have run on the clock tick.
	m.CleanupInactive()
	if _, ok := m.Device(quiet.ID); ok {
		t.Error("Expected the quiet device to be dropped")
	}
	if _, ok := m.Device(chatty.ID); !ok {
		t.Error("Expected the chatty device to survive")
	}
}

func TestWatch_Closed(t *testing.T) {
	m, _ := newTestManager(t)
	m.Close()

	_, err := m.Watch(context.Background(), nfc.WatchOptions{}, func(nfc.Message) {})
	if nfc.ErrorName(err) != "InvalidStateError" {
		t.Errorf("Expected InvalidStateError, got %v", err)
	}
	if !errors.Is(err, nfc.ErrInvalidState) {
		t.Errorf("Expected Watch to wrap ErrInvalidState, got %v", err)
	}

	_, err = m.Register(protocol.DeviceRegistrationRequest{DeviceName: "phone", Platform: "android"})
	if !errors.Is(err, nfc.ErrInvalidState) {
		t.Errorf("Expected Register to wrap ErrInvalidState, got %v", err)
	}
}

func TestServeHTTP_DeviceSession(t *testing.T) {
	m, _ := newTestManager(t)
	srv := httptest.NewServer(m)
	defer srv.Close()

	got := make(chan nfc.Message, 1)
	sub, _ := m.Watch(context.Background(), nfc.WatchOptions{Mode: nfc.ModeAny}, func(msg nfc.Message) { got <- msg })
	defer sub.Cancel()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(map[string]any{
		"id":   "1",
		"type": protocol.WSTypeRegisterDevice,
		"payload": protocol.DeviceRegistrationRequest{
			DeviceName: "Test Phone",
			Platform:   "android",
		},
	})

	var reg struct {
		Success bool                                `json:"success"`
		Payload protocol.DeviceRegistrationResponse `json:"payload"`
	}
	if err := conn.ReadJSON(&reg); err != nil {
		t.Fatalf("Failed to read registration response: %v", err)
	}
	if !reg.Success || reg.Payload.DeviceID == "" {
		t.Fatalf("Registration failed: %+v", reg)
	}
	if reg.Payload.ServerInfo.Version != "test" {
		t.Errorf("Expected server version 'test', got %q", reg.Payload.ServerInfo.Version)
	}

	conn.WriteJSON(map[string]any{
		"id":   "2",
		"type": protocol.WSTypeTagData,
		"payload": protocol.TagData{
			UID:     "04:01:02:03",
			Records: []protocol.RecordInput{{RecordType: "text", Content: "from phone"}},
		},
	})

	var ack protocol.WebSocketResponse
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("Failed to read ack: %v", err)
	}
	if !ack.Success || ack.Type != protocol.WSTypeAck || ack.ID != "2" {
		t.Errorf("Unexpected ack: %+v", ack)
	}

	select {
	case msg := <-got:
		if msg.Records[0].Text() != "from phone" {
			t.Errorf("Unexpected record: %+v", msg.Records[0])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the tag")
	}

	conn.WriteJSON(map[string]any{"id": "3", "type": "bogus"})
	var errResp protocol.WebSocketResponse
	if err := conn.ReadJSON(&errResp); err != nil {
		t.Fatalf("Failed to read error response: %v", err)
	}
	if errResp.Success || errResp.Type != protocol.WSTypeError {
		t.Errorf("Expected an error response, got %+v", errResp)
	}
}

func TestServeHTTP_RequiresRegistration(t *testing.T) {
	m, _ := newTestManager(t)
	srv := httptest.NewServer(m)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(map[string]any{"type": protocol.WSTypeTagData})
	var resp protocol.WebSocketResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if resp.Success || resp.Type != protocol.WSTypeError {
		t.Errorf("Expected registration to be required, got %+v", resp)
	}
	if len(m.Devices()) != 0 {
		t.Errorf("Expected no registered devices, got %d", len(m.Devices()))
	}
}
