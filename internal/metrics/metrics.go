package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakroom_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "speakroom_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Speaking requests
	RequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speakroom_requests_sent_total",
			Help: "Total speaking requests sent",
		},
	)

	RequestsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakroom_requests_resolved_total",
			Help: "Total speaking requests resolved",
		},
		[]string{"outcome"}, // "accepted", "rejected", "cancelled", "expired"
	)

	// Rooms
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speakroom_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	RoomsEnded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speakroom_rooms_ended_total",
			Help: "Total rooms ended",
		},
	)

	RoomCodeCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "speakroom_room_code_collisions_total",
			Help: "Generated room codes that collided with an active room",
		},
	)

	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "speakroom_session_duration_seconds",
			Help:    "Reported time a participant spent in a room",
			Buckets: prometheus.ExponentialBuckets(30, 2, 8),
		},
	)

	// Likes and chat
	LikesToggled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakroom_likes_toggled_total",
			Help: "Total like toggles",
		},
		[]string{"result"}, // "like", "unlike", "reverted"
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speakroom_messages_sent_total",
			Help: "Total chat messages persisted",
		},
		[]string{"visibility"}, // "group" or "private"
	)

	ChatConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "speakroom_chat_connections",
			Help: "Open chat connections",
		},
	)
)
