package remote

import (
	"fmt"

	"github.com/nedpals/nfc-watch-agent/nfc"
	"github.com/nedpals/nfc-watch-agent/protocol"
)

// ToMessage converts tag data sent by a device into a Message. A raw NDEF
// message takes precedence over decoded records.
func ToMessage(data protocol.TagData) (nfc.Message, error) {
	uid, err := protocol.ParseUID(data.UID)
	if err != nil {
		return nfc.Message{}, fmt.Errorf("invalid UID: %w", err)
	}

	var msg nfc.Message
	if len(data.RawNDEF) > 0 {
		msg, err = nfc.DecodeMessage(data.RawNDEF)
		if err != nil {
			return nfc.Message{}, err
		}
	} else {
		msg.Records = make([]nfc.Record, 0, len(data.Records))
		for i, in := range data.Records {
			rec, err := toRecord(in)
			if err != nil {
				return nfc.Message{}, fmt.Errorf("record %d: %w", i, err)
			}
			msg.Records = append(msg.Records, rec)
		}
	}

	msg.SerialNumber = nfc.FormatSerialNumber(uid)
	if msg.URL == "" {
		msg.URL = data.URL
	}
	return msg, nil
}

func toRecord(in protocol.RecordInput) (nfc.Record, error) {
	if in.RecordType == "" {
		return nfc.Record{}, fmt.Errorf("record type is required")
	}

	rec := nfc.Record{
		RecordType: in.RecordType,
		MediaType:  in.MediaType,
		ID:         in.ID,
		Encoding:   in.Encoding,
		Lang:       in.Lang,
		Data:       in.Data,
	}
	if len(rec.Data) == 0 && in.Content != "" {
		rec.Data = []byte(in.Content)
	}
	if rec.RecordType == nfc.RecordTypeText {
		if rec.Encoding == "" {
			rec.Encoding = "utf-8"
		}
		if rec.Lang == "" {
			rec.Lang = "en"
		}
	}
	if rec.RecordType == nfc.RecordTypeMIME && rec.MediaType == "" {
		return nfc.Record{}, fmt.Errorf("mime record without media type")
	}
	return rec, nil
}
