package remote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nedpals/nfc-watch-agent/protocol"
)

// ServeHTTP upgrades a device connection. The first message must be a
// registerDevice request; afterwards the device sends tagData and
// heartbeat messages until it disconnects.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}
	m.logger.Printf("WebSocket connected from %s", r.RemoteAddr)

	s := &session{conn: conn}
	var dev *Device
	defer func() {
		conn.Close()
		if dev != nil {
			m.Unregister(dev.ID)
		}
	}()

	var req protocol.WebSocketRequest
	if err := conn.ReadJSON(&req); err != nil {
		m.logger.Printf("Failed to read registration message: %v", err)
		s.sendError("", protocol.ErrCodeParse, "Invalid message format")
		return
	}
	if req.Type != protocol.WSTypeRegisterDevice {
		s.sendError(req.ID, protocol.ErrCodeInvalidType, fmt.Sprintf("Expected '%s' message", protocol.WSTypeRegisterDevice))
		return
	}

	var reg protocol.DeviceRegistrationRequest
	if err := req.DecodePayload(&reg); err != nil {
		s.sendError(req.ID, protocol.ErrCodeParse, "Invalid registration payload")
		return
	}
	dev, err = m.Register(reg)
	if err != nil {
		s.sendError(req.ID, protocol.ErrCodeRegistration, err.Error())
		return
	}
	dev.attach(conn)

	s.send(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    protocol.WSTypeRegisterDevice,
		Success: true,
		Payload: protocol.DeviceRegistrationResponse{
			DeviceID:   dev.ID,
			ServerInfo: protocol.ServerInfo{Version: m.version},
		},
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.sendError("", protocol.ErrCodeParse, "Invalid message format")
			continue
		}

		switch req.Type {
		case protocol.WSTypeTagData:
			m.handleTagData(s, dev, req)
		case protocol.WSTypeHeartbeat:
			m.Heartbeat(dev.ID)
			s.send(protocol.WebSocketResponse{ID: req.ID, Type: protocol.WSTypeAck, Success: true})
		default:
			s.sendError(req.ID, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
		}
	}
}

func (m *Manager) handleTagData(s *session, dev *Device, req protocol.WebSocketRequest) {
	var data protocol.TagData
	if err := req.DecodePayload(&data); err != nil {
		s.sendError(req.ID, protocol.ErrCodeParse, "Invalid tag data payload")
		return
	}

	delivered, err := m.SubmitTag(dev.ID, data)
	if err != nil {
		m.logger.Printf("Rejected tag from %s: %v", dev, err)
		s.sendError(req.ID, protocol.ErrCodeInvalidTagData, err.Error())
		return
	}
	s.send(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    protocol.WSTypeAck,
		Success: true,
		Payload: map[string]int{"delivered": delivered},
	})
}

// session serializes writes to a device connection.
type session struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *session) send(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.WriteJSON(v)
}

func (s *session) sendError(id, code, message string) {
	s.send(protocol.WebSocketResponse{
		ID:      id,
		Type:    protocol.WSTypeError,
		Success: false,
		Error:   message,
		Payload: protocol.ErrorPayload{Code: code, Message: message},
	})
}
