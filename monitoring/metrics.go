package monitoring

import (
	"context"
	"runtime"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total tickets issued, by issuance path",
		},
		[]string{"path"},
	)

	ticketsValidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_validated_total",
			Help: "Total validation attempts, by outcome",
		},
		[]string{"result"},
	)

	requestsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_requests_submitted_total",
			Help: "Total ticket requests submitted",
		},
	)

	requestsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_requests_processed_total",
			Help: "Total ticket requests processed, by decision",
		},
		[]string{"decision"},
	)

	availableTickets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_available_tickets",
			Help: "Current available tickets per active event",
		},
		[]string{"event_id"},
	)

	pendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_ticket_requests_total",
			Help: "Current number of pending ticket requests",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

func TicketIssued(path string) {
	ticketsIssued.WithLabelValues(path).Inc()
}

func TicketValidated(result string) {
	ticketsValidated.WithLabelValues(result).Inc()
}

func RequestSubmitted() {
	requestsSubmitted.Inc()
}

func RequestProcessed(decision string) {
	requestsProcessed.WithLabelValues(decision).Inc()
}

// Monitor periodically refreshes the gauges that mirror store state. Counter
// updates happen inline in the services; only the gauges need polling.
type Monitor struct {
	app      core.App
	redis    *redis.Client
	interval time.Duration
}

func NewMonitor(app core.App, redisClient *redis.Client, interval time.Duration) *Monitor {
	monitor := &Monitor{app: app, redis: redisClient, interval: interval}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		m.collectEventMetrics(ctx)
		m.collectRequestMetrics()
		goroutineCount.Set(float64(runtime.NumGoroutine()))
	}
}

func (m *Monitor) collectEventMetrics(ctx context.Context) {
	// The active-events set in redis is kept in sync by record hooks, so the
	// gauge only covers events that can still sell tickets.
	eventIDs, err := m.redis.SMembers(ctx, "events:active").Result()
	if err != nil {
		return
	}

	for _, eventID := range eventIDs {
		record, err := m.app.FindRecordById("events", eventID)
		if err != nil {
			availableTickets.DeleteLabelValues(eventID)
			continue
		}
		availableTickets.WithLabelValues(eventID).Set(float64(record.GetInt("available_tickets")))
	}
}

func (m *Monitor) collectRequestMetrics() {
	var total int
	err := m.app.DB().
		NewQuery("SELECT COUNT(*) FROM ticket_requests WHERE status = {:status}").
		Bind(dbx.Params{"status": "PENDING"}).
		Row(&total)
	if err != nil {
		return
	}
	pendingRequests.Set(float64(total))
}
