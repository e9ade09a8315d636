// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package roles provides the capability checks composed into the transit
// and bridge components: two-step ownership, pause gating, and stuck-fund
// rescue. Each role is an independent struct injected where needed and
// consulted explicitly at the top of gated operations.
package roles

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/ids"
)

var (
	// ErrNotAuthorized is returned when a caller lacks the required role.
	ErrNotAuthorized = errors.New("caller not authorized")

	// ErrPaused is returned by gated operations while paused.
	ErrPaused = errors.New("operation paused")
)

// Ownable2Step rotates an owner identity in two steps: the current owner
// nominates, the nominee accepts. A pending transfer is replaced by a new
// nomination and cleared on acceptance.
type Ownable2Step struct {
	mu           sync.Mutex
	owner        ids.ID
	pendingOwner ids.ID
}

// NewOwnable creates the role with its initial owner.
func NewOwnable(owner ids.ID) *Ownable2Step {
	return &Ownable2Step{owner: owner}
}

// Owner returns the current owner identity.
func (o *Ownable2Step) Owner() ids.ID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.owner
}

// PendingOwner returns the nominated owner, zero if none.
func (o *Ownable2Step) PendingOwner() ids.ID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pendingOwner
}

// RequireOwner checks that caller is the current owner.
func (o *Ownable2Step) RequireOwner(caller ids.ID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if caller != o.owner {
		return fmt.Errorf("%w: caller %s is not the owner", ErrNotAuthorized, caller)
	}
	return nil
}

// TransferOwnership nominates a new owner.
func (o *Ownable2Step) TransferOwnership(caller, newOwner ids.ID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if caller != o.owner {
		return fmt.Errorf("%w: caller %s is not the owner", ErrNotAuthorized, caller)
	}
	if newOwner == (ids.ID{}) {
		return fmt.Errorf("%w: zero owner", ErrNotAuthorized)
	}
	o.pendingOwner = newOwner
	return nil
}

// AcceptOwnership completes a pending transfer.
func (o *Ownable2Step) AcceptOwnership(caller ids.ID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pendingOwner == (ids.ID{}) || caller != o.pendingOwner {
		return fmt.Errorf("%w: caller %s is not the pending owner", ErrNotAuthorized, caller)
	}
	o.owner = o.pendingOwner
	o.pendingOwner = ids.ID{}
	return nil
}
