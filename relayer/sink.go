// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import "github.com/luxfi/transit"

// ChannelSink is an EventSink that forwards emitted messages onto a
// buffered channel for the relayer to drain. Events other than MessageSent
// are ignored. When the buffer is full the message is dropped; a relayer
// that cannot keep up must not block the sending transmitter.
type ChannelSink struct {
	ch chan []byte
}

// NewChannelSink creates a sink buffering up to size messages.
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{ch: make(chan []byte, size)}
}

// Emit implements transit.EventSink.
func (s *ChannelSink) Emit(event any) {
	sent, ok := event.(transit.MessageSent)
	if !ok {
		return
	}
	select {
	case s.ch <- sent.Message:
	default:
	}
}

// Messages returns the channel of raw sent messages.
func (s *ChannelSink) Messages() <-chan []byte {
	return s.ch
}
