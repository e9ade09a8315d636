// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import "github.com/prometheus/client_golang/prometheus"

type transmitterMetrics struct {
	messagesSent     prometheus.Counter
	messagesReplaced prometheus.Counter
	messagesReceived prometheus.Counter
	receiveFailures  prometheus.Counter
}

func newTransmitterMetrics(registerer prometheus.Registerer) *transmitterMetrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	m := &transmitterMetrics{
		messagesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "messages_sent",
				Help: "Number of messages emitted for off-chain pickup",
			},
		),
		messagesReplaced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "messages_replaced",
				Help: "Number of replacement messages emitted",
			},
		),
		messagesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "messages_received",
				Help: "Number of messages delivered to a handler",
			},
		),
		receiveFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "receive_failures",
				Help: "Number of receive operations rejected",
			},
		),
	}
	registerer.MustRegister(m.messagesSent)
	registerer.MustRegister(m.messagesReplaced)
	registerer.MustRegister(m.messagesReceived)
	registerer.MustRegister(m.receiveFailures)
	return m
}
