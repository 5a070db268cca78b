package ece

import (
	"encoding/binary"
	"fmt"
)

// minRecordSize is the smallest record size RFC 8188 allows.
const minRecordSize = 18

// Header is the parsed prefix of an aes128gcm envelope.
type Header struct {
	Salt       []byte
	RecordSize uint32
	KeyID      []byte
}

// Len returns the encoded size of the header.
func (h Header) Len() int {
	return SaltSize + 5 + len(h.KeyID)
}

// ParseHeader reads the salt, record size and key id from an envelope.
// The returned slices alias body.
func ParseHeader(body []byte) (Header, error) {
	if len(body) < SaltSize+5 {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(body))
	}

	h := Header{
		Salt:       body[:SaltSize],
		RecordSize: binary.BigEndian.Uint32(body[SaltSize : SaltSize+4]),
	}
	if h.RecordSize < minRecordSize {
		return Header{}, fmt.Errorf("%w: record size %d", ErrInvalidHeader, h.RecordSize)
	}

	idlen := int(body[SaltSize+4])
	start := SaltSize + 5
	if len(body) < start+idlen {
		return Header{}, fmt.Errorf("%w: truncated key id", ErrInvalidHeader)
	}
	h.KeyID = body[start : start+idlen]

	return h, nil
}
