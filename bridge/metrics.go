// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import "github.com/prometheus/client_golang/prometheus"

type messengerMetrics struct {
	deposits prometheus.Counter
	mints    prometheus.Counter
}

func newMessengerMetrics(registerer prometheus.Registerer) *messengerMetrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	m := &messengerMetrics{
		deposits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deposits_for_burn",
				Help: "Number of completed deposit-for-burn operations",
			},
		),
		mints: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mints_and_withdrawals",
				Help: "Number of completed mint-and-withdraw deliveries",
			},
		),
	}
	registerer.MustRegister(m.deposits)
	registerer.MustRegister(m.mints)
	return m
}
