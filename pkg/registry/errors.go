package registry

import (
	"github.com/agenthands/namereg/pkg/core"
)

var (
	ErrInvalidHashInput  = core.ErrInvalidHashInput
	ErrNotFound          = core.ErrNotFound
	ErrParentNotFound    = core.ErrParentNotFound
	ErrNotAuthorized     = core.ErrNotAuthorized
	ErrAlreadyRegistered = core.ErrAlreadyRegistered

	ErrInvalidInput       = core.ErrInvalidInput
	ErrAlreadyInitialized = core.ErrAlreadyInitialized
	ErrNotInitialized     = core.ErrNotInitialized
	ErrCorrupt            = core.ErrCorrupt
	ErrBrokenChain        = core.ErrBrokenChain
	ErrChainTooDeep       = core.ErrChainTooDeep
	ErrClosed             = core.ErrClosed
)
