package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for the HTTP layer and the
// escalation engine. Snapshots are rebuilt on each call.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64

	ticks           int64
	tickDuration    time.Duration
	lastTickAt      time.Time
	breaches        map[int]int64
	transitions     map[int]int64
	repairs         map[string]int64
	webhookSuccess  int64
	webhookFailures int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		breaches:     make(map[int]int64),
		transitions:  make(map[int]int64),
		repairs:      make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTick notes a completed sweep.
func (m *Metrics) RecordTick(duration time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
	m.tickDuration = duration
	m.lastTickAt = at
}

// RecordBreach notes a newly detected SLA breach at a level.
func (m *Metrics) RecordBreach(level int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breaches[level]++
}

// RecordTransition notes a committed escalation to a level.
func (m *Metrics) RecordTransition(toLevel int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[toLevel]++
}

// RecordRepair notes rows fixed by a repair step.
func (m *Metrics) RecordRepair(step string, count int64) {
	if m == nil || count == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repairs[step] += count
}

// RecordWebhook notes the outcome of a webhook delivery.
func (m *Metrics) RecordWebhook(success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.webhookSuccess++
	} else {
		m.webhookFailures++
	}
}

// EngineSnapshot is a point-in-time view of engine counters.
type EngineSnapshot struct {
	Ticks            int64            `json:"ticks"`
	LastTickAt       time.Time        `json:"last_tick_at"`
	LastTickDuration string           `json:"last_tick_duration"`
	Breaches         map[int]int64    `json:"breaches_by_level"`
	Transitions      map[int]int64    `json:"transitions_by_level"`
	Repairs          map[string]int64 `json:"repairs_by_step"`
	WebhookSuccess   int64            `json:"webhook_success"`
	WebhookFailures  int64            `json:"webhook_failures"`
}

// Snapshot copies the engine counters.
func (m *Metrics) Snapshot() EngineSnapshot {
	if m == nil {
		return EngineSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := EngineSnapshot{
		Ticks:            m.ticks,
		LastTickAt:       m.lastTickAt,
		LastTickDuration: m.tickDuration.String(),
		Breaches:         make(map[int]int64, len(m.breaches)),
		Transitions:      make(map[int]int64, len(m.transitions)),
		Repairs:          make(map[string]int64, len(m.repairs)),
		WebhookSuccess:   m.webhookSuccess,
		WebhookFailures:  m.webhookFailures,
	}
	for k, v := range m.breaches {
		snap.Breaches[k] = v
	}
	for k, v := range m.transitions {
		snap.Transitions[k] = v
	}
	for k, v := range m.repairs {
		snap.Repairs[k] = v
	}
	return snap
}
