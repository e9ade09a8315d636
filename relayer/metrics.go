// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import "github.com/prometheus/client_golang/prometheus"

type relayerMetrics struct {
	messagesRelayed prometheus.Counter
	relayFailures   prometheus.Counter
}

func newRelayerMetrics(registerer prometheus.Registerer) *relayerMetrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	m := &relayerMetrics{
		messagesRelayed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "messages_relayed",
				Help: "Number of messages attested and delivered",
			},
		),
		relayFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_failures",
				Help: "Number of messages that failed to attest or deliver",
			},
		),
	}
	registerer.MustRegister(m.messagesRelayed)
	registerer.MustRegister(m.relayFailures)
	return m
}
