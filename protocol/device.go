package protocol

import "time"

// DeviceRegistrationRequest is sent by a phone or browser to register as a
// remote NFC reader.
type DeviceRegistrationRequest struct {
	DeviceName string            `json:"deviceName"`
	Platform   string            `json:"platform"` // "ios", "android" or "web"
	AppVersion string            `json:"appVersion"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DeviceRegistrationResponse is sent after a successful registration.
type DeviceRegistrationResponse struct {
	DeviceID   string     `json:"deviceID"`
	ServerInfo ServerInfo `json:"serverInfo"`
}

// ServerInfo describes the agent to a registering device.
type ServerInfo struct {
	Version string `json:"version"`
}

// TagData is sent by a remote device when it reads a tag. Records are given
// either decoded in Records or as a raw NDEF message in RawNDEF.
type TagData struct {
	UID       string        `json:"uid"`
	URL       string        `json:"url,omitempty"`
	ScannedAt time.Time     `json:"scannedAt"`
	Records   []RecordInput `json:"records,omitempty"`
	RawNDEF   []byte        `json:"rawNdef,omitempty"`
}

// RecordInput is a decoded NDEF record as sent by a remote device. Text and
// url records may carry their content as a string in Content; every other
// record carries its bytes in Data (base64 in JSON).
type RecordInput struct {
	RecordType string `json:"recordType"`
	MediaType  string `json:"mediaType,omitempty"`
	ID         string `json:"id,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Lang       string `json:"lang,omitempty"`
	Content    string `json:"content,omitempty"`
	Data       []byte `json:"data,omitempty"`
}

// DeviceHeartbeat keeps a registered device alive.
type DeviceHeartbeat struct {
	Timestamp time.Time `json:"timestamp"`
}
