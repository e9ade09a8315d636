// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package roles

import (
	"fmt"
	"sync"

	"github.com/luxfi/ids"
)

// Pauser gates send, receive, and custody operations behind a shared
// paused flag controlled by a dedicated pauser identity.
type Pauser struct {
	mu     sync.Mutex
	pauser ids.ID
	paused bool
}

// NewPauser creates the role, unpaused.
func NewPauser(pauser ids.ID) *Pauser {
	return &Pauser{pauser: pauser}
}

// Pause halts gated operations.
func (p *Pauser) Pause(caller ids.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if caller != p.pauser {
		return fmt.Errorf("%w: caller %s is not the pauser", ErrNotAuthorized, caller)
	}
	p.paused = true
	return nil
}

// Unpause resumes gated operations.
func (p *Pauser) Unpause(caller ids.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if caller != p.pauser {
		return fmt.Errorf("%w: caller %s is not the pauser", ErrNotAuthorized, caller)
	}
	p.paused = false
	return nil
}

// Paused reports the current state.
func (p *Pauser) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// RequireNotPaused is called at the top of every gated operation.
func (p *Pauser) RequireNotPaused() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return ErrPaused
	}
	return nil
}

// UpdatePauser rotates the pauser identity.
func (p *Pauser) UpdatePauser(caller, newPauser ids.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if caller != p.pauser {
		return fmt.Errorf("%w: caller %s is not the pauser", ErrNotAuthorized, caller)
	}
	if newPauser == (ids.ID{}) {
		return fmt.Errorf("%w: zero pauser", ErrNotAuthorized)
	}
	p.pauser = newPauser
	return nil
}
