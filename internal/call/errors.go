package call

import "errors"

var (
	// ErrMediaAcquisition covers permission denial and device absence.
	// Fatal to the call, never to the process.
	ErrMediaAcquisition = errors.New("media acquisition failed")

	// ErrNegotiation covers local/remote description application failures.
	ErrNegotiation = errors.New("negotiation failed")

	// ErrInvalidState rejects an operation the current state does not allow,
	// e.g. accepting a call that is not ringing.
	ErrInvalidState = errors.New("invalid call state")

	// ErrBusy rejects starting a call while another one is pending or live.
	ErrBusy = errors.New("another call is already in progress")
)
