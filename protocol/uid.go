package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseUID decodes a tag UID written as hex, with or without ":", " " or
// "-" separators.
func ParseUID(uid string) ([]byte, error) {
	if uid == "" {
		return nil, fmt.Errorf("empty UID")
	}

	cleaned := strings.NewReplacer(":", "", " ", "", "-", "").Replace(uid)
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("UID has odd number of hex characters: %s", uid)
	}
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("UID contains invalid characters: %s", uid)
	}
	return b, nil
}
