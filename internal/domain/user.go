// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxIdentityLen = 64

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

// Identity is the stable user identifier issued by the auth service.
// Opaque here: the signaling core never parses it, only routes by it.
type Identity string

func (id Identity) Validate() error {
	if len(id) == 0 {
		return ErrIdentityEmpty
	}
	if len(id) > MaxIdentityLen {
		return ErrIdentityTooLong
	}
	return nil
}
