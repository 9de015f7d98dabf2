// Package nfc defines the NFC watch capability consumed by the reader bridge:
// watch options, the messages and records a platform delivers, and the
// Watcher/Subscription pair that hardware and remote providers implement.
//
// Example:
//
//	sub, err := watcher.Watch(ctx, nfc.WatchOptions{Mode: nfc.ModeAny}, func(msg nfc.Message) {
//	    for _, rec := range msg.Records {
//	        fmt.Println(rec.RecordType, rec.Text())
//	    }
//	})
//	defer sub.Cancel()
package nfc

import (
	"context"
	"unicode/utf16"
)

// WatchMode tells the platform whether only Web NFC content or any NFC
// content is watched. Values are passed through to the provider unchecked.
type WatchMode string

const (
	// ModeWebNFCOnly delivers only messages that carry a Web NFC id.
	ModeWebNFCOnly WatchMode = "web-nfc-only"
	// ModeAny delivers every NDEF message read.
	ModeAny WatchMode = "any"
)

// WatchOptions is the filter value handed to a Watcher.
// Empty patterns mean that no matching happens.
type WatchOptions struct {
	URL        string    `json:"url"`
	MediaType  string    `json:"mediaType"`
	RecordType string    `json:"recordType"`
	Mode       WatchMode `json:"mode"`
}

// Record types produced by the NDEF decoder.
const (
	RecordTypeEmpty       = "empty"
	RecordTypeText        = "text"
	RecordTypeURL         = "url"
	RecordTypeAbsoluteURL = "absolute-url"
	RecordTypeMIME        = "mime"
	RecordTypeSmartPoster = "smart-poster"
	RecordTypeUnknown     = "unknown"
)

// Record is one unit of data within a received message. The reader bridge
// forwards it verbatim and never inspects it.
type Record struct {
	RecordType string `json:"recordType"`
	MediaType  string `json:"mediaType,omitempty"`
	ID         string `json:"id,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Lang       string `json:"lang,omitempty"`
	// Data holds the decoded payload: text bytes for text records, the
	// expanded URL for url records, raw payload bytes otherwise.
	Data []byte `json:"data"`
}

// Text returns the record data as a string, decoding UTF-16 text records.
func (r Record) Text() string {
	if r.Encoding == "utf-16" && len(r.Data)%2 == 0 {
		u := make([]uint16, len(r.Data)/2)
		for i := range u {
			u[i] = uint16(r.Data[2*i])<<8 | uint16(r.Data[2*i+1])
		}
		return string(utf16.Decode(u))
	}
	return string(r.Data)
}

// Message is what a platform delivers on each tag read.
type Message struct {
	// URL is the Web NFC id of the message, empty for plain NDEF content.
	URL string `json:"url,omitempty"`
	// SerialNumber is the tag UID in colon-separated hex, if known.
	SerialNumber string   `json:"serialNumber,omitempty"`
	Records      []Record `json:"records"`
}

// MessageHandler is called once per delivered message, in delivery order.
type MessageHandler func(Message)

// Subscription is an active watch registration.
type Subscription interface {
	ID() string
	// Cancel stops deliveries and releases the registration. Calling it more
	// than once is allowed.
	Cancel() error
}

// Watcher is the platform NFC capability. Watch returns once registration
// has settled: a nil error means the handler may be invoked from now on, from
// a goroutine owned by the Watcher, until the subscription is cancelled.
type Watcher interface {
	Watch(ctx context.Context, opts WatchOptions, handler MessageHandler) (Subscription, error)
}
