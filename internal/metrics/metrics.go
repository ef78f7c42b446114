package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchTotal counts message dispatch outcomes per payload kind.
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wasender_dispatch_total",
		Help: "Message sends by kind and outcome.",
	}, []string{"kind", "outcome"})

	// AttendanceTotal counts /add-absen results.
	AttendanceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wasender_attendance_total",
		Help: "Attendance records by identity type and status.",
	}, []string{"tipe", "status"})

	// Connected reports the current WhatsApp connection state (0 or 1).
	Connected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wasender_connected",
		Help: "Whether the WhatsApp session is connected.",
	})
)
