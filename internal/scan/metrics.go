package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrlens_scan_frames_total",
			Help: "Frames offered to scan coordinators by outcome",
		},
		[]string{"outcome"}, // submitted, dropped_busy, dropped_suspended, dropped_closed
	)

	decodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrlens_scan_decodes_total",
			Help: "Completed decode operations by result",
		},
		[]string{"result"}, // detected, empty, error, stale
	)

	decodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qrlens_scan_decode_duration_seconds",
			Help:    "Time spent in the decoder per submitted frame",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)
)
