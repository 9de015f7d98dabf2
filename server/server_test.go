package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nedpals/nfc-watch-agent/nfc"
	"github.com/nedpals/nfc-watch-agent/protocol"
	"github.com/nedpals/nfc-watch-agent/reader"
)

type silentBeeper struct{}

func (silentBeeper) Beep() error  { return nil }
func (silentBeeper) Close() error { return nil }

func newTestServer(t *testing.T, cfg Config, opts ...reader.Option) (*Server, *httptest.Server, *nfc.MockWatcher) {
	t.Helper()
	watcher := nfc.NewMockWatcher()
	rd := reader.New(context.Background(), watcher, append([]reader.Option{reader.WithBeeper(silentBeeper{})}, opts...)...)
	t.Cleanup(func() { rd.Close() })

	cfg.Reader = rd
	cfg.DisableMDNS = true
	s := New(cfg)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Stop()
		ts.Close()
	})
	return s, ts, watcher
}

func dialEvents(t *testing.T, s *Server, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + RouteEvents + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Client was never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

type rawMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg rawMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return msg
}

func TestHealth(t *testing.T) {
	_, ts, _ := newTestServer(t, Config{Version: "1.2.3"})

	resp, err := http.Get(ts.URL + RouteHealth)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != CORSAllowOrigin {
		t.Error("Expected CORS header on health response")
	}
	var health protocol.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if health.Status != "ok" || health.Version != "1.2.3" {
		t.Errorf("Unexpected health response: %+v", health)
	}
}

func TestConfig_GetAndPut(t *testing.T) {
	_, ts, watcher := newTestServer(t, Config{}, reader.WithURL("https://a.example/*"))

	resp, err := http.Get(ts.URL + RouteConfig)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var got protocol.ReaderConfig
	json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()
	if got.Src != "https://a.example/*" || got.Mode != "any" {
		t.Errorf("Unexpected config: %+v", got)
	}

	body := []byte(`{"recordType":"url","sound":true}`)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+RouteConfig, bytes.NewReader(body))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	json.NewDecoder(resp.Body).Decode(&got)
	if got.RecordType != "url" || !got.Sound || got.Src != "https://a.example/*" {
		t.Errorf("Unexpected updated config: %+v", got)
	}

	if n := len(watcher.Subscriptions()); n != 2 {
		t.Errorf("Expected a resubscription after a record type change, got %d subscriptions", n)
	}
	if watcher.ActiveSubscriptions() != 1 {
		t.Errorf("Expected 1 active subscription, got %d", watcher.ActiveSubscriptions())
	}
}

func TestConfig_BadRequests(t *testing.T) {
	_, ts, _ := newTestServer(t, Config{})

	req, _ := http.NewRequest(http.MethodPut, ts.URL+RouteConfig, strings.NewReader("{"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+RouteConfig, "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodOptions, ts.URL+RouteConfig, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", resp.StatusCode)
	}
}

func TestEvents_BroadcastsWatchAndStatus(t *testing.T) {
	s, ts, watcher := newTestServer(t, Config{}, reader.WithVerbose(true))
	conn := dialEvents(t, s, ts, "")

	watcher.Deliver(nfc.Message{Records: []nfc.Record{
		{RecordType: nfc.RecordTypeText, Lang: "en", Encoding: "utf-8", Data: []byte("one")},
		{RecordType: nfc.RecordTypeURL, Data: []byte("https://example.com")},
	}})

	for _, want := range []string{"one", "https://example.com"} {
		msg := readMessage(t, conn)
		if msg.Type != reader.EventWatch {
			t.Fatalf("Expected %s, got %s", reader.EventWatch, msg.Type)
		}
		var detail reader.WatchDetail
		if err := json.Unmarshal(msg.Payload, &detail); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if string(detail.Record.Data) != want {
			t.Errorf("Expected record data %q, got %q", want, detail.Record.Data)
		}
	}

	req, _ := http.NewRequest(http.MethodPut, ts.URL+RouteConfig, strings.NewReader(`{"mode":"web-nfc-only"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT failed: %v", err)
	}
	resp.Body.Close()

	msg := readMessage(t, conn)
	if msg.Type != reader.EventStatus {
		t.Fatalf("Expected %s, got %s", reader.EventStatus, msg.Type)
	}
	var detail reader.StatusDetail
	json.Unmarshal(msg.Payload, &detail)
	if detail.Status.Type != reader.StatusInfo || detail.Status.Message != reader.MsgWatchAdded {
		t.Errorf("Unexpected status: %+v", detail.Status)
	}
}

func TestEvents_Heartbeat(t *testing.T) {
	s, ts, _ := newTestServer(t, Config{})
	conn := dialEvents(t, s, ts, "")

	conn.WriteJSON(protocol.WebSocketRequest{ID: "h1", Type: protocol.WSTypeHeartbeat})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp protocol.WebSocketResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if resp.ID != "h1" || resp.Type != protocol.WSTypeAck || !resp.Success {
		t.Errorf("Unexpected heartbeat response: %+v", resp)
	}

	conn.WriteJSON(protocol.WebSocketRequest{ID: "x", Type: "bogus"})
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if resp.Type != protocol.WSTypeError || resp.Success {
		t.Errorf("Expected an error response, got %+v", resp)
	}
}

func TestEvents_APISecret(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		wantOK bool
	}{
		{"valid secret", "?secret=s3cret", true},
		{"invalid secret", "?secret=nope", false},
		{"no secret", "", false},
	}

	_, ts, _ := newTestServer(t, Config{APISecret: "s3cret"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(ts.URL, "http") + RouteEvents + tt.query
			conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Dial failed: %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("Expected the connection to be rejected")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %v", resp)
			}
		})
	}
}

func TestDeviceRoute(t *testing.T) {
	var called atomic.Bool
	device := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	})
	_, ts, _ := newTestServer(t, Config{Device: device})

	resp, err := http.Get(ts.URL + RouteDevice)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if !called.Load() {
		t.Error("Expected the device handler to be called")
	}

	resp, err = http.Get(ts.URL + "/missing")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestStop_RemovesForwarding(t *testing.T) {
	s, _, _ := newTestServer(t, Config{})
	rd := s.config.Reader

	if rd.ListenerCount(reader.EventWatch) != 1 {
		t.Fatalf("Expected the hub to listen for watch events")
	}
	s.Stop()
	s.Stop()
	if rd.ListenerCount(reader.EventWatch) != 0 {
		t.Error("Expected Stop to remove the hub's listeners")
	}
}
