package camera

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var framesCaptured = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "qrlens_camera_frames_total",
		Help: "Frames produced by camera sources",
	},
	[]string{"backend", "outcome"},
)
