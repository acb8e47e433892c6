package token

import "errors"

// Public, stable errors for callers.
var (
	ErrKeyTooShort   = errors.New("token key too short")
	ErrInvalidSealed = errors.New("token sealed value invalid")
	ErrUnknownCodec  = errors.New("token codec unknown")
)
