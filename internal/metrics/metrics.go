// Package metrics exposes the gateway's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedSessions tracks live socket sessions.
	ConnectedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "decidr",
		Subsystem: "gateway",
		Name:      "connected_sessions",
		Help:      "Number of currently connected socket sessions.",
	})

	// RoomOccupancy tracks sessions currently joined to rooms, summed over
	// rooms.
	RoomOccupancy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "decidr",
		Subsystem: "gateway",
		Name:      "room_occupancy",
		Help:      "Number of session-room join pairs currently active.",
	})

	// MessagesSent counts persisted messages by origin surface.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "decidr",
		Subsystem: "messages",
		Name:      "sent_total",
		Help:      "Number of messages persisted, by originating surface.",
	}, []string{"surface"})

	// BroadcastDrops counts frames dropped because a session's send queue was
	// full.
	BroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "decidr",
		Subsystem: "gateway",
		Name:      "broadcast_drops_total",
		Help:      "Number of frames dropped due to a full session send queue.",
	})

	// EventsHandled counts inbound socket events by name.
	EventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "decidr",
		Subsystem: "gateway",
		Name:      "events_handled_total",
		Help:      "Number of inbound socket events handled, by event name.",
	}, []string{"event"})
)
