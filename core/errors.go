package core

import "errors"

// Rejection reasons (spec §7: "Error kinds (not exceptions — rejection
// reasons)"). Handlers compare with errors.Is and drop-or-reject
// accordingly; none of these ever terminate a background task.
var (
	ErrBadSignature          = errors.New("bad signature")
	ErrDuplicateTransaction  = errors.New("duplicate transaction")
	ErrDuplicateMessage      = errors.New("duplicate message")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrNonPositiveAmount     = errors.New("non-positive amount")
	ErrHashMismatch          = errors.New("hash mismatch")
	ErrInvalidProofOfWork    = errors.New("invalid proof of work")
	ErrInvalidVRF            = errors.New("invalid vrf proof")
	ErrUnexpectedProducer    = errors.New("unexpected producer")
	ErrStaleChain            = errors.New("stale chain")
	ErrMaliciousFork         = errors.New("malicious fork")
	ErrNotFound              = errors.New("not found")
)
