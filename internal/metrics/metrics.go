package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "onlyif_live_connections",
		Help: "Live channel sockets currently joined to a user room on this instance.",
	})

	ChatMessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onlyif_chat_messages_sent_total",
		Help: "Chat messages persisted, by the transport that accepted them.",
	}, []string{"transport"})

	LiveFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "onlyif_live_frames_dropped_total",
		Help: "Outbound frames dropped because a client send buffer was full.",
	})

	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onlyif_notifications_created_total",
		Help: "Notifications created, by type.",
	}, []string{"type"})

	NotificationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onlyif_notification_transitions_total",
		Help: "Notification state changes applied, by action.",
	}, []string{"action"})

	NotificationsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "onlyif_notifications_purged_total",
		Help: "Expired notifications removed by the purge job.",
	})
)
