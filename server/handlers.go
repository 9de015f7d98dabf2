package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nedpals/nfc-watch-agent/nfc"
	"github.com/nedpals/nfc-watch-agent/protocol"
	"github.com/nedpals/nfc-watch-agent/reader"
)

// handleHealth serves GET /api/v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:    "ok",
		Version:   s.config.Version,
		Timestamp: time.Now().UTC(),
	})
}

// handleConfig serves GET and PUT /api/v1/config.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	rd := s.config.Reader
	if rd == nil {
		http.Error(w, "No reader configured", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toReaderConfig(rd.Config()))

	case http.MethodPut:
		var update protocol.ReaderConfigUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			writeJSON(w, http.StatusBadRequest, protocol.ErrorPayload{
				Code:    protocol.ErrCodeInvalidRequest,
				Message: "Invalid config body: " + err.Error(),
			})
			return
		}
		err := rd.Update(r.Context(), func(cfg *reader.Config) {
			applyUpdate(cfg, update)
		})
		if errors.Is(err, reader.ErrClosed) {
			http.Error(w, "Reader closed", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, protocol.ErrorPayload{
				Code:    protocol.ErrCodeInternalError,
				Message: err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, toReaderConfig(rd.Config()))

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleEvents upgrades to a WebSocket and streams reader events until the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.config.APISecret != "" {
		secret := r.URL.Query().Get("secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.config.APISecret)) != 1 {
			s.logger.Printf("WebSocket connection rejected: invalid API secret")
			http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}
	c := &client{conn: conn}
	s.hub.add(c)
	s.logger.Printf("Client connected from %s", r.RemoteAddr)

	defer func() {
		s.hub.remove(c)
		conn.Close()
		s.logger.Printf("Client %s disconnected", r.RemoteAddr)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Printf("WebSocket read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.send(errorResponse("", protocol.ErrCodeParse, "Invalid message format"))
			continue
		}
		switch req.Type {
		case protocol.WSTypeHeartbeat:
			c.send(protocol.WebSocketResponse{ID: req.ID, Type: protocol.WSTypeAck, Success: true})
		default:
			c.send(errorResponse(req.ID, protocol.ErrCodeUnknownType, "Unknown message type: "+req.Type))
		}
	}
}

func errorResponse(id, code, message string) protocol.WebSocketResponse {
	return protocol.WebSocketResponse{
		ID:      id,
		Type:    protocol.WSTypeError,
		Success: false,
		Error:   message,
		Payload: protocol.ErrorPayload{Code: code, Message: message},
	}
}

func toReaderConfig(cfg reader.Config) protocol.ReaderConfig {
	return protocol.ReaderConfig{
		Src:        cfg.URL,
		RecordType: cfg.RecordType,
		MediaType:  cfg.MediaType,
		Mode:       string(cfg.Mode),
		Verbose:    cfg.Verbose,
		Sound:      cfg.Sound,
	}
}

func applyUpdate(cfg *reader.Config, u protocol.ReaderConfigUpdate) {
	if u.Src != nil {
		cfg.URL = *u.Src
	}
	if u.RecordType != nil {
		cfg.RecordType = *u.RecordType
	}
	if u.MediaType != nil {
		cfg.MediaType = *u.MediaType
	}
	if u.Mode != nil {
		cfg.Mode = nfc.WatchMode(*u.Mode)
	}
	if u.Verbose != nil {
		cfg.Verbose = *u.Verbose
	}
	if u.Sound != nil {
		cfg.Sound = *u.Sound
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
