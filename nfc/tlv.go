package nfc

import "fmt"

// TLV block types found in the data area of NFC Forum Type 1/2 tags and in
// the NDEF sectors of MIFARE Classic.
const (
	TLVNull        = 0x00
	TLVLockControl = 0x01
	TLVMemControl  = 0x02
	TLVNDEF        = 0x03
	TLVProprietary = 0xFD
	TLVTerminator  = 0xFE
)

// ExtractNDEF walks a TLV area and returns the value of the first NDEF
// Message TLV. It returns (nil, nil) when the area holds no NDEF message,
// which is the normal state of a blank or factory-fresh tag.
func ExtractNDEF(area []byte) ([]byte, error) {
	offset := 0
	for offset < len(area) {
		t := area[offset]
		switch t {
		case TLVNull:
			offset++
			continue
		case TLVTerminator:
			return nil, nil
		}

		length, lenSize, err := tlvLength(area, offset+1)
		if err != nil {
			return nil, err
		}
		start := offset + 1 + lenSize
		end := start + length
		if end > len(area) {
			return nil, NewInvalidDataError("ExtractNDEF",
				fmt.Errorf("TLV 0x%02X at offset %d overruns data area (%d > %d)", t, offset, end, len(area)))
		}
		if t == TLVNDEF {
			if length == 0 {
				return nil, nil
			}
			return area[start:end], nil
		}
		offset = end
	}
	return nil, nil
}

// NDEFAreaSize reports how many bytes of the TLV area must be read to cover
// the first NDEF TLV, given at least its header. ok is false if more header
// bytes are needed.
func NDEFAreaSize(head []byte) (size int, ok bool) {
	offset := 0
	for offset < len(head) {
		t := head[offset]
		if t == TLVNull {
			offset++
			continue
		}
		if t == TLVTerminator {
			return offset + 1, true
		}
		length, lenSize, err := tlvLength(head, offset+1)
		if err != nil {
			return 0, false
		}
		end := offset + 1 + lenSize + length
		if t == TLVNDEF {
			return end, true
		}
		offset = end
	}
	return 0, false
}

// tlvLength decodes a one- or three-byte TLV length field at pos.
func tlvLength(data []byte, pos int) (length, size int, err error) {
	if pos >= len(data) {
		return 0, 0, NewInvalidDataError("ExtractNDEF", fmt.Errorf("TLV length missing at offset %d", pos))
	}
	if data[pos] != 0xFF {
		return int(data[pos]), 1, nil
	}
	if pos+2 >= len(data) {
		return 0, 0, NewInvalidDataError("ExtractNDEF", fmt.Errorf("TLV long length truncated at offset %d", pos))
	}
	return int(data[pos+1])<<8 | int(data[pos+2]), 3, nil
}

// WrapNDEF wraps an NDEF message in an NDEF TLV followed by a terminator.
func WrapNDEF(msg []byte) []byte {
	out := []byte{TLVNDEF}
	if len(msg) < 0xFF {
		out = append(out, byte(len(msg)))
	} else {
		out = append(out, 0xFF, byte(len(msg)>>8), byte(len(msg)))
	}
	out = append(out, msg...)
	return append(out, TLVTerminator)
}
