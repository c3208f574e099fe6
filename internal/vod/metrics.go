// SPDX-License-Identifier: MIT

package vod

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCachedRecordings = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reovod_vod_recordings_cached",
		Help: "Number of recordings currently held in the in-memory cache.",
	}, []string{"camera", "channel"})

	metricRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reovod_vod_refresh_total",
		Help: "Refresh cycles per channel by outcome.",
	}, []string{"camera", "channel", "outcome"})

	metricRefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reovod_vod_refresh_duration_seconds",
		Help:    "Duration of channel refresh cycles.",
		Buckets: prometheus.DefBuckets,
	}, []string{"camera"})

	metricGapFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reovod_vod_gap_fetches_total",
		Help: "Device searches issued to fill gaps in the covered window.",
	}, []string{"camera", "channel"})
)
