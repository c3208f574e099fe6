// SPDX-License-Identifier: MIT

package reolink

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reovod_reolink_requests_total",
		Help: "Outcome of Reolink API commands",
	}, []string{"camera", "cmd", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reovod_reolink_request_duration_seconds",
		Help:    "Reolink API command latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"camera", "cmd"})

	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reovod_reolink_logins_total",
		Help: "Token logins per camera",
	}, []string{"camera", "outcome"})
)

func observeRequest(camera, cmd, outcome string, start time.Time) {
	requestsTotal.WithLabelValues(camera, cmd, outcome).Inc()
	requestDuration.WithLabelValues(camera, cmd).Observe(time.Since(start).Seconds())
}
