// Package metrics 汇总协作核心的 Prometheus 指标。所有方法对 nil 接收者安全。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collabboard"

// Metrics 指标集合
type Metrics struct {
	gatherer prometheus.Gatherer

	connections         prometheus.Gauge
	onlineUsers         prometheus.Gauge
	rooms               prometheus.Gauge
	inboundEvents       *prometheus.CounterVec
	droppedFrames       *prometheus.CounterVec
	slowEvictions       prometheus.Counter
	messagesSent        *prometheus.CounterVec
	persistFailures     *prometheus.CounterVec
	presenceTransitions *prometheus.CounterVec
	roomsSwept          prometheus.Counter
}

// New 在 reg 上注册全部指标，reg 为 nil 时使用独立的新注册表
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections",
			Help: "Open transport connections.",
		}),
		onlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "online_users",
			Help: "Users with at least one open connection or inside the grace window.",
		}),
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rooms",
			Help: "Whiteboard rooms held in memory.",
		}),
		inboundEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "inbound_events_total",
			Help: "Client events processed, by type.",
		}, []string{"type"}),
		droppedFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dropped_frames_total",
			Help: "Outbound frames dropped because a connection queue was full, by delivery class.",
		}, []string{"class"}),
		slowEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "slow_consumer_evictions_total",
			Help: "Connections closed because a reliable frame could not be queued.",
		}),
		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_sent_total",
			Help: "Chat messages accepted, by initial status.",
		}, []string{"status"}),
		persistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "persistence_failures_total",
			Help: "Failed persistence side effects, by operation.",
		}, []string{"op"}),
		presenceTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "presence_transitions_total",
			Help: "Online/offline transitions emitted by the connection registry.",
		}, []string{"state"}),
		roomsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rooms_swept_total",
			Help: "Rooms removed by the inactivity sweep.",
		}),
	}
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) SetConnections(n int) {
	if m != nil {
		m.connections.Set(float64(n))
	}
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m != nil {
		m.onlineUsers.Set(float64(n))
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

func (m *Metrics) InboundEvent(eventType string) {
	if m != nil {
		m.inboundEvents.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) DroppedFrame(class string) {
	if m != nil {
		m.droppedFrames.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) SlowEviction() {
	if m != nil {
		m.slowEvictions.Inc()
	}
}

func (m *Metrics) MessageSent(status string) {
	if m != nil {
		m.messagesSent.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) PersistFailure(op string) {
	if m != nil {
		m.persistFailures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) PresenceTransition(online bool) {
	if m == nil {
		return
	}
	state := "offline"
	if online {
		state = "online"
	}
	m.presenceTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) RoomsSwept(n int) {
	if m != nil && n > 0 {
		m.roomsSwept.Add(float64(n))
	}
}
