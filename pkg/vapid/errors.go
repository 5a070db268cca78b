package vapid

import (
	"errors"
	"fmt"
)

// ErrAuthentication is the class of every failure caused by the deployment's
// key material. It aborts a whole delivery batch.
var ErrAuthentication = errors.New("vapid: authentication failed")

var (
	ErrMissingKey        = fmt.Errorf("%w: missing key material", ErrAuthentication)
	ErrInvalidPrivateKey = fmt.Errorf("%w: invalid private key", ErrAuthentication)
	ErrInvalidPublicKey  = fmt.Errorf("%w: invalid public key", ErrAuthentication)
	ErrKeyMismatch       = fmt.Errorf("%w: public key does not match private key", ErrAuthentication)
	ErrInvalidSubject    = fmt.Errorf("%w: subject must be a mailto: or https: URI", ErrAuthentication)
	ErrSigning           = fmt.Errorf("%w: signing failed", ErrAuthentication)
)

var (
	ErrInvalidAudience      = errors.New("vapid: audience must be an http(s) origin")
	ErrInvalidToken         = errors.New("vapid: invalid token")
	ErrInvalidAuthorization = errors.New("vapid: malformed authorization header")
)
