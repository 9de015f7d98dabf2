package nfc

import (
	"bytes"
	"testing"
)

func TestExtractNDEF(t *testing.T) {
	ndef := []byte{0xD1, 0x01, 0x04, 'T', 0x02, 'e', 'n', 'A'}

	tests := []struct {
		name string
		area []byte
		want []byte
	}{
		{"plain", WrapNDEF(ndef), ndef},
		{"leading nulls", append([]byte{0x00, 0x00}, WrapNDEF(ndef)...), ndef},
		{"lock control first", append([]byte{TLVLockControl, 0x03, 0xA0, 0x0C, 0x34}, WrapNDEF(ndef)...), ndef},
		{"terminator only", []byte{TLVTerminator, 0x00}, nil},
		{"empty ndef tlv", []byte{TLVNDEF, 0x00, TLVTerminator}, nil},
		{"all zeros", make([]byte, 16), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractNDEF(tt.area)
			if err != nil {
				t.Fatalf("ExtractNDEF failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Expected %X, got %X", tt.want, got)
			}
		})
	}
}

func TestExtractNDEF_Overrun(t *testing.T) {
	_, err := ExtractNDEF([]byte{TLVNDEF, 0x10, 0xD1})
	if err == nil {
		t.Fatal("Expected an overrun error")
	}
	if GetErrorCode(err) != ErrCodeInvalidData {
		t.Errorf("Expected ErrCodeInvalidData, got %v", GetErrorCode(err))
	}
}

func TestWrapNDEF_LongLength(t *testing.T) {
	msg := bytes.Repeat([]byte{0xAA}, 300)
	area := WrapNDEF(msg)

	if area[1] != 0xFF || area[2] != 0x01 || area[3] != 0x2C {
		t.Fatalf("Expected three byte length 0xFF 0x01 0x2C, got % X", area[1:4])
	}
	got, err := ExtractNDEF(area)
	if err != nil {
		t.Fatalf("ExtractNDEF failed: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Error("Long NDEF TLV did not round trip")
	}
}

func TestNDEFAreaSize(t *testing.T) {
	area := append([]byte{0x00, TLVLockControl, 0x03, 1, 2, 3}, WrapNDEF(make([]byte, 20))...)

	size, ok := NDEFAreaSize(area[:8])
	if !ok {
		t.Fatal("Expected size to be known from the header")
	}
	if size != 6+2+20 {
		t.Errorf("Expected size %d, got %d", 6+2+20, size)
	}

	if _, ok := NDEFAreaSize(area[:3]); ok {
		t.Error("Expected header to be incomplete")
	}
}
