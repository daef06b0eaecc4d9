package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "gogotex", Subsystem: "collab", Name: "sessions_active", Help: "Authenticated realtime sessions currently connected."},
	)
	RoomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "gogotex", Subsystem: "collab", Name: "rooms_active", Help: "Document rooms currently held in memory."},
	)
	Edits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "collab", Name: "edits_total", Help: "Edit submissions by outcome (accepted or the rejection code)."},
		[]string{"result"},
	)
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "collab", Name: "deliveries_total", Help: "Broadcast deliveries to sessions by outcome."},
		[]string{"result"},
	)
	RoomFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "collab", Name: "room_flushes_total", Help: "Room snapshot flushes to persistence by outcome."},
		[]string{"result"},
	)
	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "collab", Name: "auth_failures_total", Help: "Refused realtime connections by reason code."},
		[]string{"reason"},
	)
	Disconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "gogotex", Subsystem: "collab", Name: "disconnects_total", Help: "Closed realtime sessions by reason."},
		[]string{"reason"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(SessionsActive)
	reg.MustRegister(RoomsActive)
	reg.MustRegister(Edits)
	reg.MustRegister(Deliveries)
	reg.MustRegister(RoomFlushes)
	reg.MustRegister(AuthFailures)
	reg.MustRegister(Disconnects)
}
