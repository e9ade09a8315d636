// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import "errors"

// Every operation in this package fails into exactly one of these classes.
// Callers match with errors.Is; a failed operation leaves no state behind.
var (
	// ErrFormat is returned for malformed or truncated message bytes.
	ErrFormat = errors.New("malformed message")

	// ErrAuthorization is returned when an attestation, caller, or sender
	// fails an identity check.
	ErrAuthorization = errors.New("unauthorized")

	// ErrSequencing is returned for used nonces and domain or version
	// mismatches.
	ErrSequencing = errors.New("sequencing violation")

	// ErrPolicy is returned when an operation violates a configured limit
	// or precondition.
	ErrPolicy = errors.New("policy violation")

	// ErrDispatch is returned when the handler registered at the recipient
	// rejects a delivered message body.
	ErrDispatch = errors.New("handler rejected message")
)
