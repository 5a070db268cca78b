package ece

import (
	"errors"
	"fmt"
)

// ErrEncryption is the class of every failure raised while building an
// envelope. Callers scope it to one subscriber.
var ErrEncryption = errors.New("ece: encryption failed")

var (
	ErrInvalidPublicKey  = fmt.Errorf("%w: invalid subscriber public key", ErrEncryption)
	ErrInvalidAuthSecret = fmt.Errorf("%w: invalid subscriber auth secret", ErrEncryption)
	ErrContentTooLarge   = fmt.Errorf("%w: content exceeds a single record", ErrEncryption)
)

// Decoding errors.
var (
	ErrDecryption     = errors.New("ece: decryption failed")
	ErrInvalidHeader  = errors.New("ece: invalid envelope header")
	ErrInvalidPadding = errors.New("ece: missing record delimiter")
	ErrMultipleRecord = errors.New("ece: multi-record envelopes are not supported")
)
