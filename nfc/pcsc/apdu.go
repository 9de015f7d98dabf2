package pcsc

import (
	"errors"
	"fmt"
)

// Reader pseudo-APDUs understood by PC/SC contactless readers.
const (
	claPCSC       = 0xFF
	insGetData    = 0xCA
	insReadBinary = 0xB0
)

type response struct {
	data     []byte
	sw1, sw2 byte
}

func (r response) ok() bool {
	return r.sw1 == 0x90 && r.sw2 == 0x00
}

func (r response) err() error {
	return fmt.Errorf("APDU error: SW1=%02X SW2=%02X", r.sw1, r.sw2)
}

func parseResponse(raw []byte) (response, error) {
	if len(raw) < 2 {
		return response{}, errors.New("response too short")
	}
	return response{data: raw[:len(raw)-2], sw1: raw[len(raw)-2], sw2: raw[len(raw)-1]}, nil
}

// getUIDAPDU is FF CA 00 00 00.
func getUIDAPDU() []byte {
	return []byte{claPCSC, insGetData, 0x00, 0x00, 0x00}
}

// readBinaryAPDU reads n bytes starting at a Type 2 page.
func readBinaryAPDU(page, n byte) []byte {
	return []byte{claPCSC, insReadBinary, 0x00, page, n}
}
