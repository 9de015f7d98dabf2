package nfc

import "strings"

// Filter applies the watch options to a message the way a platform would
// before delivering it. Records that do not match the record type or media
// type patterns are dropped; ok is false when nothing is left to deliver.
func (o WatchOptions) Filter(msg Message) (Message, bool) {
	if o.Mode == ModeWebNFCOnly && msg.URL == "" {
		return Message{}, false
	}
	if o.URL != "" && !MatchURL(o.URL, msg.URL) {
		return Message{}, false
	}
	if o.RecordType == "" && o.MediaType == "" {
		return msg, len(msg.Records) > 0
	}

	out := msg
	out.Records = make([]Record, 0, len(msg.Records))
	for _, rec := range msg.Records {
		if o.RecordType != "" && rec.RecordType != o.RecordType {
			continue
		}
		if o.MediaType != "" && !MatchMediaType(o.MediaType, rec.MediaType) {
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, len(out.Records) > 0
}

// MatchURL reports whether a Web NFC id matches a URL pattern. A '*' in the
// pattern matches any run of characters, so "https://example.com/*" matches
// every id under that origin.
func MatchURL(pattern, id string) bool {
	if pattern == "" {
		return true
	}
	if id == "" {
		return false
	}
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == id
	}
	if !strings.HasPrefix(id, parts[0]) {
		return false
	}
	rest := id[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(rest, part)
		if i < 0 {
			return false
		}
		rest = rest[i+len(part):]
	}
	return strings.HasSuffix(rest, last)
}

// MatchMediaType reports whether a record media type matches a pattern such
// as "application/json", "image/*" or "*/*". Parameters are ignored.
func MatchMediaType(pattern, mediaType string) bool {
	if pattern == "" {
		return true
	}
	if mediaType == "" {
		return false
	}
	pattern = strings.ToLower(strings.TrimSpace(stripParams(pattern)))
	mediaType = strings.ToLower(strings.TrimSpace(stripParams(mediaType)))
	if pattern == "*/*" || pattern == mediaType {
		return true
	}
	if major, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(mediaType, major+"/")
	}
	return false
}

func stripParams(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		return mt[:i]
	}
	return mt
}
