package fcl

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidProposer      = errors.New("fcl: invalid proposer")
	ErrMissingPayer         = errors.New("fcl: missing payer")
	ErrMissingAuthz         = errors.New("fcl: no authz service matches account")
	ErrIncompleteSignatures = errors.New("fcl: signer has not signed")
	ErrKeyNotFound          = errors.New("fcl: account key not found")
	ErrDeclined             = errors.New("fcl: request declined")
	ErrSigningFailed        = errors.New("fcl: signing failed")
	ErrBadInteraction       = errors.New("fcl: interaction is bad")
)

// DecodeError is returned when a remote payload cannot be decoded.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("fcl: decode response: %v", e.Err)
	}
	return fmt.Sprintf("fcl: decode response field %q: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
