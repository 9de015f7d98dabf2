package nfc

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Type Name Format values of an NDEF record header.
const (
	TNFEmpty       = 0x00
	TNFWellKnown   = 0x01
	TNFMedia       = 0x02
	TNFAbsoluteURI = 0x03
	TNFExternal    = 0x04
	TNFUnknown     = 0x05
	TNFUnchanged   = 0x06
)

// WebNFCRecordType is the external type carrying the Web NFC id of a message.
const WebNFCRecordType = "w3.org:webnfc"

// uriPrefixes maps the URI identifier code of a URI record to its prefix
// (NFC Forum URI RTD, table 3).
var uriPrefixes = [...]string{
	"", "http://www.", "https://www.", "http://", "https://", "tel:", "mailto:",
	"ftp://anonymous:anonymous@", "ftp://ftp.", "ftps://", "sftp://", "smb://",
	"nfs://", "ftp://", "dav://", "news:", "telnet://", "imap:", "rtsp://",
	"urn:", "pop:", "sip:", "sips:", "tftp:", "btspp://", "btl2cap://",
	"btgoep://", "tcpobex://", "irdaobex://", "file://", "urn:epc:id:",
	"urn:epc:tag:", "urn:epc:pat:", "urn:epc:raw:", "urn:epc:", "urn:nfc:",
}

// rawRecord is a record as laid out on the tag.
type rawRecord struct {
	tnf     byte
	typ     []byte
	id      []byte
	payload []byte
}

// DecodeMessage decodes an NDEF message into a Message. An external record
// of type "w3.org:webnfc" becomes the message URL and is not returned as a
// record.
func DecodeMessage(data []byte) (Message, error) {
	raws, err := parseRecords(data)
	if err != nil {
		return Message{}, err
	}

	var msg Message
	msg.Records = make([]Record, 0, len(raws))
	for _, raw := range raws {
		if raw.tnf == TNFExternal && strings.EqualFold(string(raw.typ), WebNFCRecordType) {
			msg.URL = string(raw.payload)
			continue
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return Message{}, err
		}
		msg.Records = append(msg.Records, rec)
	}
	return msg, nil
}

func parseRecords(data []byte) ([]rawRecord, error) {
	if len(data) == 0 {
		return nil, NewInvalidDataError("DecodeMessage", fmt.Errorf("empty NDEF message"))
	}

	var records []rawRecord
	offset := 0
	for offset < len(data) {
		header := data[offset]
		me := header&0x40 != 0
		cf := header&0x20 != 0
		sr := header&0x10 != 0
		il := header&0x08 != 0
		tnf := header & 0x07
		pos := offset + 1

		if cf {
			return nil, NewInvalidDataError("DecodeMessage", fmt.Errorf("chunked record at offset %d", offset))
		}
		if pos >= len(data) {
			return nil, truncated("type length", offset)
		}
		typeLen := int(data[pos])
		pos++

		var payloadLen int
		if sr {
			if pos >= len(data) {
				return nil, truncated("payload length", offset)
			}
			payloadLen = int(data[pos])
			pos++
		} else {
			if pos+4 > len(data) {
				return nil, truncated("payload length", offset)
			}
			payloadLen = int(binary.BigEndian.Uint32(data[pos : pos+4]))
			pos += 4
		}

		idLen := 0
		if il {
			if pos >= len(data) {
				return nil, truncated("id length", offset)
			}
			idLen = int(data[pos])
			pos++
		}

		if payloadLen < 0 || pos+typeLen+idLen+payloadLen > len(data) {
			return nil, truncated("record body", offset)
		}
		rec := rawRecord{tnf: tnf}
		rec.typ = append([]byte(nil), data[pos:pos+typeLen]...)
		pos += typeLen
		rec.id = append([]byte(nil), data[pos:pos+idLen]...)
		pos += idLen
		rec.payload = append([]byte(nil), data[pos:pos+payloadLen]...)
		pos += payloadLen

		records = append(records, rec)
		offset = pos
		if me {
			break
		}
	}
	return records, nil
}

func truncated(field string, offset int) error {
	return NewInvalidDataError("DecodeMessage", fmt.Errorf("truncated %s in record at offset %d", field, offset))
}

func decodeRecord(raw rawRecord) (Record, error) {
	rec := Record{ID: string(raw.id)}
	switch raw.tnf {
	case TNFEmpty:
		rec.RecordType = RecordTypeEmpty
	case TNFWellKnown:
		switch string(raw.typ) {
		case "T":
			rec.RecordType = RecordTypeText
			if err := decodeText(raw.payload, &rec); err != nil {
				return Record{}, err
			}
		case "U":
			rec.RecordType = RecordTypeURL
			uri, err := decodeURI(raw.payload)
			if err != nil {
				return Record{}, err
			}
			rec.Data = []byte(uri)
		case "Sp":
			rec.RecordType = RecordTypeSmartPoster
			rec.Data = raw.payload
		default:
			rec.RecordType = ":" + string(raw.typ)
			rec.Data = raw.payload
		}
	case TNFMedia:
		rec.RecordType = RecordTypeMIME
		rec.MediaType = string(raw.typ)
		rec.Data = raw.payload
	case TNFAbsoluteURI:
		rec.RecordType = RecordTypeAbsoluteURL
		rec.Data = raw.typ
	case TNFExternal:
		rec.RecordType = string(raw.typ)
		rec.Data = raw.payload
	case TNFUnknown:
		rec.RecordType = RecordTypeUnknown
		rec.Data = raw.payload
	default:
		return Record{}, NewInvalidDataError("DecodeMessage", fmt.Errorf("unsupported TNF 0x%02X", raw.tnf))
	}
	return rec, nil
}

func decodeText(payload []byte, rec *Record) error {
	if len(payload) < 1 {
		return NewInvalidDataError("decodeText", fmt.Errorf("text record payload missing status byte"))
	}
	status := payload[0]
	langLen := int(status & 0x3F)
	if 1+langLen > len(payload) {
		return NewInvalidDataError("decodeText", fmt.Errorf("text record language code truncated"))
	}
	rec.Encoding = "utf-8"
	if status&0x80 != 0 {
		rec.Encoding = "utf-16"
	}
	rec.Lang = string(payload[1 : 1+langLen])
	rec.Data = payload[1+langLen:]
	return nil
}

func decodeURI(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", NewInvalidDataError("decodeURI", fmt.Errorf("URI record payload missing identifier code"))
	}
	prefix := ""
	if int(payload[0]) < len(uriPrefixes) {
		prefix = uriPrefixes[payload[0]]
	}
	return prefix + string(payload[1:]), nil
}

// EncodeMessage encodes records into an NDEF message. It is the inverse of
// DecodeMessage for text, url, mime, empty and external records and is used
// by the remote provider and by tests to build tag contents. A non-empty
// webNFCID is written as a leading "w3.org:webnfc" record.
func EncodeMessage(webNFCID string, records []Record) ([]byte, error) {
	var raws []rawRecord
	if webNFCID != "" {
		raws = append(raws, rawRecord{tnf: TNFExternal, typ: []byte(WebNFCRecordType), payload: []byte(webNFCID)})
	}
	for i, rec := range records {
		raw, err := encodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		raws = append(raws, raw)
	}
	if len(raws) == 0 {
		raws = append(raws, rawRecord{tnf: TNFEmpty})
	}

	var out []byte
	for i, raw := range raws {
		header := raw.tnf
		if i == 0 {
			header |= 0x80
		}
		if i == len(raws)-1 {
			header |= 0x40
		}
		short := len(raw.payload) <= 0xFF
		if short {
			header |= 0x10
		}
		if len(raw.id) > 0 {
			header |= 0x08
		}
		out = append(out, header, byte(len(raw.typ)))
		if short {
			out = append(out, byte(len(raw.payload)))
		} else {
			out = binary.BigEndian.AppendUint32(out, uint32(len(raw.payload)))
		}
		if len(raw.id) > 0 {
			out = append(out, byte(len(raw.id)))
		}
		out = append(out, raw.typ...)
		out = append(out, raw.id...)
		out = append(out, raw.payload...)
	}
	return out, nil
}

func encodeRecord(rec Record) (rawRecord, error) {
	raw := rawRecord{id: []byte(rec.ID)}
	switch rec.RecordType {
	case RecordTypeEmpty:
		raw.tnf = TNFEmpty
	case RecordTypeText:
		lang := rec.Lang
		if lang == "" {
			lang = "en"
		}
		if len(lang) > 0x3F {
			return rawRecord{}, NewInvalidDataError("EncodeMessage", fmt.Errorf("language code too long"))
		}
		status := byte(len(lang))
		if rec.Encoding == "utf-16" {
			status |= 0x80
		}
		raw.tnf = TNFWellKnown
		raw.typ = []byte("T")
		raw.payload = append(append([]byte{status}, lang...), rec.Data...)
	case RecordTypeURL:
		raw.tnf = TNFWellKnown
		raw.typ = []byte("U")
		raw.payload = encodeURI(string(rec.Data))
	case RecordTypeMIME:
		raw.tnf = TNFMedia
		raw.typ = []byte(rec.MediaType)
		raw.payload = rec.Data
	case RecordTypeAbsoluteURL:
		raw.tnf = TNFAbsoluteURI
		raw.typ = rec.Data
	case RecordTypeUnknown:
		raw.tnf = TNFUnknown
		raw.payload = rec.Data
	case RecordTypeSmartPoster:
		raw.tnf = TNFWellKnown
		raw.typ = []byte("Sp")
		raw.payload = rec.Data
	default:
		if local, ok := strings.CutPrefix(rec.RecordType, ":"); ok {
			raw.tnf = TNFWellKnown
			raw.typ = []byte(local)
		} else if strings.Contains(rec.RecordType, ":") {
			raw.tnf = TNFExternal
			raw.typ = []byte(rec.RecordType)
		} else {
			return rawRecord{}, NewInvalidDataError("EncodeMessage", fmt.Errorf("unsupported record type %q", rec.RecordType))
		}
		raw.payload = rec.Data
	}
	return raw, nil
}

func encodeURI(uri string) []byte {
	best := 0
	for code, prefix := range uriPrefixes {
		if code > 0 && strings.HasPrefix(uri, prefix) && len(prefix) > len(uriPrefixes[best]) {
			best = code
		}
	}
	return append([]byte{byte(best)}, uri[len(uriPrefixes[best]):]...)
}
