// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import (
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"
)

// AttesterManager owns the set of enabled attester addresses and the
// signature threshold. Mutations are gated to the manager identity and
// re-validate the set invariants: the threshold always satisfies
// 1 <= threshold <= |enabled|, and the set never shrinks below one member.
type AttesterManager struct {
	mu        sync.RWMutex
	manager   common.Address
	enabled   set.Set[common.Address]
	threshold int
}

// NewAttesterManager bootstraps the set. At least one attester and a
// threshold within [1, len(attesters)] are required.
func NewAttesterManager(manager common.Address, attesters []common.Address, threshold int) (*AttesterManager, error) {
	if manager == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero manager address", ErrPolicy)
	}
	if len(attesters) == 0 {
		return nil, fmt.Errorf("%w: no attesters", ErrPolicy)
	}
	enabled := set.NewSet[common.Address](len(attesters))
	for _, attester := range attesters {
		if attester == (common.Address{}) {
			return nil, fmt.Errorf("%w: zero attester address", ErrPolicy)
		}
		if enabled.Contains(attester) {
			return nil, fmt.Errorf("%w: duplicate attester %s", ErrPolicy, attester)
		}
		enabled.Add(attester)
	}
	if threshold < 1 || threshold > enabled.Len() {
		return nil, fmt.Errorf("%w: threshold %d out of range [1, %d]", ErrPolicy, threshold, enabled.Len())
	}
	return &AttesterManager{
		manager:   manager,
		enabled:   enabled,
		threshold: threshold,
	}, nil
}

// EnableAttester adds an attester to the enabled set.
func (a *AttesterManager) EnableAttester(caller, attester common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireManager(caller); err != nil {
		return err
	}
	if attester == (common.Address{}) {
		return fmt.Errorf("%w: zero attester address", ErrPolicy)
	}
	if a.enabled.Contains(attester) {
		return fmt.Errorf("%w: attester %s already enabled", ErrPolicy, attester)
	}
	a.enabled.Add(attester)
	return nil
}

// DisableAttester removes an attester. The removal is rejected when it would
// leave fewer attesters than the threshold requires, or empty the set down
// from its last remaining member.
func (a *AttesterManager) DisableAttester(caller, attester common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireManager(caller); err != nil {
		return err
	}
	if a.enabled.Len() <= 1 {
		return fmt.Errorf("%w: cannot disable the only enabled attester", ErrPolicy)
	}
	if a.enabled.Len()-1 < a.threshold {
		return fmt.Errorf("%w: disabling would leave %d attesters below threshold %d",
			ErrPolicy, a.enabled.Len()-1, a.threshold)
	}
	if !a.enabled.Contains(attester) {
		return fmt.Errorf("%w: attester %s not enabled", ErrPolicy, attester)
	}
	a.enabled.Remove(attester)
	return nil
}

// SetSignatureThreshold updates the number of signatures an attestation
// must carry.
func (a *AttesterManager) SetSignatureThreshold(caller common.Address, threshold int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireManager(caller); err != nil {
		return err
	}
	if threshold < 1 || threshold > a.enabled.Len() {
		return fmt.Errorf("%w: threshold %d out of range [1, %d]", ErrPolicy, threshold, a.enabled.Len())
	}
	a.threshold = threshold
	return nil
}

// UpdateManager rotates the manager identity.
func (a *AttesterManager) UpdateManager(caller, newManager common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireManager(caller); err != nil {
		return err
	}
	if newManager == (common.Address{}) {
		return fmt.Errorf("%w: zero manager address", ErrPolicy)
	}
	a.manager = newManager
	return nil
}

// Manager returns the current manager identity.
func (a *AttesterManager) Manager() common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.manager
}

// Threshold returns the current signature threshold.
func (a *AttesterManager) Threshold() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.threshold
}

// IsEnabled reports whether the address is an enabled attester.
func (a *AttesterManager) IsEnabled(attester common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled.Contains(attester)
}

// Attesters returns the enabled attester addresses in unspecified order.
func (a *AttesterManager) Attesters() []common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled.List()
}

func (a *AttesterManager) requireManager(caller common.Address) error {
	if caller != a.manager {
		return fmt.Errorf("%w: caller %s is not the attester manager", ErrAuthorization, caller)
	}
	return nil
}
