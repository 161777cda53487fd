package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidHashInput  = errors.New("namereg: invalid hash input")
	ErrNotFound          = errors.New("namereg: not found")
	ErrParentNotFound    = errors.New("namereg: parent not found")
	ErrNotAuthorized     = errors.New("namereg: not authorized")
	ErrAlreadyRegistered = errors.New("namereg: already registered")

	ErrInvalidInput       = errors.New("namereg: invalid input")
	ErrAlreadyInitialized = errors.New("namereg: registry already initialized")
	ErrNotInitialized     = errors.New("namereg: registry not initialized")
	ErrCorrupt            = errors.New("namereg: corrupt data")
	ErrBrokenChain        = fmt.Errorf("%w: ancestor chain references a missing node", ErrCorrupt)
	ErrChainTooDeep       = errors.New("namereg: ancestor chain too deep")
	ErrClosed             = errors.New("namereg: registry closed")
)

// Code is the stable scalar form of a caller-facing error.
type Code uint32

const (
	CodeInternal          Code = 0
	CodeInvalidHashInput  Code = 1
	CodeNotFound          Code = 2
	CodeParentNotFound    Code = 3
	CodeNotAuthorized     Code = 4
	CodeAlreadyRegistered Code = 5
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrInvalidHashInput, CodeInvalidHashInput},
	{ErrNotFound, CodeNotFound},
	{ErrParentNotFound, CodeParentNotFound},
	{ErrNotAuthorized, CodeNotAuthorized},
	{ErrAlreadyRegistered, CodeAlreadyRegistered},
}

func (c Code) String() string {
	switch c {
	case CodeInvalidHashInput:
		return "invalid_hash_input"
	case CodeNotFound:
		return "not_found"
	case CodeParentNotFound:
		return "parent_not_found"
	case CodeNotAuthorized:
		return "not_authorized"
	case CodeAlreadyRegistered:
		return "already_registered"
	default:
		return "internal"
	}
}

// CodeOf maps err to its stable code. Errors without one, including the
// fatal precondition violations, map to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeInternal
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
