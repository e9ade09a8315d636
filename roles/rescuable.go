// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package roles

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

// Transferable is the minimal token surface the rescuer needs.
type Transferable interface {
	Transfer(from, to ids.ID, amount *uint256.Int) error
}

// Rescuable moves funds stranded in a custody identity to a recipient
// chosen by the rescuer.
type Rescuable struct {
	mu      sync.Mutex
	rescuer ids.ID
}

// NewRescuable creates the role.
func NewRescuable(rescuer ids.ID) *Rescuable {
	return &Rescuable{rescuer: rescuer}
}

// Rescuer returns the rescuer identity.
func (r *Rescuable) Rescuer() ids.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rescuer
}

// RescueFunds transfers amount of token from custody to the recipient.
func (r *Rescuable) RescueFunds(caller ids.ID, token Transferable, custody, to ids.ID, amount *uint256.Int) error {
	r.mu.Lock()
	rescuer := r.rescuer
	r.mu.Unlock()
	if caller != rescuer {
		return fmt.Errorf("%w: caller %s is not the rescuer", ErrNotAuthorized, caller)
	}
	return token.Transfer(custody, to, amount)
}

// UpdateRescuer rotates the rescuer identity.
func (r *Rescuable) UpdateRescuer(caller, newRescuer ids.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.rescuer {
		return fmt.Errorf("%w: caller %s is not the rescuer", ErrNotAuthorized, caller)
	}
	if newRescuer == (ids.ID{}) {
		return fmt.Errorf("%w: zero rescuer", ErrNotAuthorized)
	}
	r.rescuer = newRescuer
	return nil
}
