package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/youcloud/sla-engine/internal/config"
	"github.com/youcloud/sla-engine/internal/domain"
	"github.com/youcloud/sla-engine/internal/events"
	"github.com/youcloud/sla-engine/internal/observability"
	"github.com/youcloud/sla-engine/internal/repository"
	"github.com/youcloud/sla-engine/internal/webhook"
	"github.com/youcloud/sla-engine/pkg/util"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeTicketRepo struct {
	tickets map[int64]*domain.Ticket
	listErr error
}

func newFakeTicketRepo(tickets ...*domain.Ticket) *fakeTicketRepo {
	repo := &fakeTicketRepo{tickets: map[int64]*domain.Ticket{}}
	for _, t := range tickets {
		repo.tickets[t.ID] = t
	}
	return repo
}

func (r *fakeTicketRepo) ListActive(ctx context.Context) ([]domain.Ticket, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Ticket
	for _, t := range r.tickets {
		if !t.Status.IsTerminal() {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	t, ok := r.tickets[id]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTicketRepo) UpdateEscalation(ctx context.Context, id int64, upd repository.TicketEscalationUpdate) error {
	t, ok := r.tickets[id]
	if !ok {
		return errors.New("ticket not found")
	}
	if upd.EscalationLevel != nil {
		level := *upd.EscalationLevel
		t.EscalationLevel = &level
	}
	if upd.CurrentSLATarget != nil {
		target := *upd.CurrentSLATarget
		t.CurrentSLATarget = &target
	}
	if upd.ClearLegacyLevel {
		t.LegacyEscalationLevel = nil
	}
	return nil
}

type fakeSLALogRepo struct {
	logs   []*domain.SLALog
	nextID int64
}

func (r *fakeSLALogRepo) add(log domain.SLALog) *domain.SLALog {
	r.nextID++
	log.ID = r.nextID
	copied := log
	r.logs = append(r.logs, &copied)
	return &copied
}

func (r *fakeSLALogRepo) byID(id int64) *domain.SLALog {
	for _, l := range r.logs {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (r *fakeSLALogRepo) Create(ctx context.Context, log *domain.SLALog) error {
	stored := r.add(*log)
	log.ID = stored.ID
	return nil
}

func (r *fakeSLALogRepo) LatestByTicket(ctx context.Context, ticketID int64) (*domain.SLALog, error) {
	var latest *domain.SLALog
	for _, l := range r.logs {
		if l.TicketID == ticketID && (latest == nil || l.ID > latest.ID) {
			latest = l
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeSLALogRepo) ExistsForLevel(ctx context.Context, ticketID int64, level int) (bool, error) {
	for _, l := range r.logs {
		if l.TicketID == ticketID && l.EscalationLevel == level {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeSLALogRepo) ListBreachedUnescalated(ctx context.Context) ([]domain.SLALog, error) {
	var out []domain.SLALog
	for _, l := range r.logs {
		if l.IsBreached && l.EscalatedAt == nil && l.EscalationLevel < domain.MaxEscalationLevel {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *fakeSLALogRepo) MarkBreached(ctx context.Context, id int64, breachTime time.Time) error {
	l := r.byID(id)
	if l == nil {
		return errors.New("log not found")
	}
	if !l.IsBreached {
		l.IsBreached = true
		l.Status = domain.SLAStatusBreached
		bt := breachTime
		l.BreachTime = &bt
	}
	return nil
}

func (r *fakeSLALogRepo) MarkResolved(ctx context.Context, ticketID int64, at time.Time, method string) error {
	return nil
}

func (r *fakeSLALogRepo) ExtendTarget(ctx context.Context, id int64, extraHours float64) error {
	l := r.byID(id)
	if l == nil {
		return errors.New("log not found")
	}
	l.SLATargetHours += extraHours
	return nil
}

func (r *fakeSLALogRepo) DeleteOrphans(ctx context.Context) (int64, error)    { return 0, nil }
func (r *fakeSLALogRepo) DeleteDuplicates(ctx context.Context) (int64, error) { return 0, nil }
func (r *fakeSLALogRepo) BackfillTimestamps(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
func (r *fakeSLALogRepo) MarkPastDeadlineBreached(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
func (r *fakeSLALogRepo) Statistics(ctx context.Context, since time.Time) (*domain.SLAStatistics, error) {
	return &domain.SLAStatistics{}, nil
}

type fakePartnerRepo struct {
	partners []*domain.Partner
	listErr  error
}

func (r *fakePartnerRepo) GetByID(ctx context.Context, id int64) (*domain.Partner, error) {
	for _, p := range r.partners {
		if p.ID == id {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakePartnerRepo) ListActiveByTier(ctx context.Context, tier domain.PartnerTier) ([]domain.Partner, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Partner
	for _, p := range r.partners {
		if p.Tier == tier && p.Status == domain.PartnerStatusActive {
			out = append(out, *p)
		}
	}
	// lowest load first, ties by id
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].TotalTicketsHandled < out[i].TotalTicketsHandled ||
				(out[j].TotalTicketsHandled == out[i].TotalTicketsHandled && out[j].ID < out[i].ID) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

type fakeRuleRepo struct {
	rule *domain.EscalationRule
}

func (r *fakeRuleRepo) FindActive(ctx context.Context, priority domain.TicketPriority, categoryID *int64) (*domain.EscalationRule, error) {
	return r.rule, nil
}

type fakeStatusLogRepo struct {
	entries []domain.TicketStatusLog
}

func (r *fakeStatusLogRepo) Create(ctx context.Context, entry *domain.TicketStatusLog) error {
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeStatusLogRepo) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketStatusLog, error) {
	var out []domain.TicketStatusLog
	for _, e := range r.entries {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeAuditLogRepo struct {
	entries []domain.AuditLog
}

func (r *fakeAuditLogRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditLogRepo) actions() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// fakeStore applies transitions against the in-memory fakes with the same
// seal semantics as the real transactional store.
type fakeStore struct {
	tickets    *fakeTicketRepo
	slaLogs    *fakeSLALogRepo
	partners   *fakePartnerRepo
	statusLogs *fakeStatusLogRepo
	auditLogs  *fakeAuditLogRepo

	applyErr    error
	tablesExist bool
	applied     []repository.Transition
}

func (s *fakeStore) TablesExist(ctx context.Context) (bool, error) {
	return s.tablesExist, nil
}

func (s *fakeStore) ApplyTransition(ctx context.Context, t repository.Transition) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	if t.PrevLogID != nil {
		prev := s.slaLogs.byID(*t.PrevLogID)
		if prev == nil {
			return errors.New("previous log missing")
		}
		if prev.EscalatedAt != nil {
			return repository.ErrAlreadyEscalated
		}
		at := t.NewLog.CreatedAt
		prev.EscalatedAt = &at
	}
	s.slaLogs.add(t.NewLog)
	s.statusLogs.entries = append(s.statusLogs.entries, t.StatusLog)
	s.auditLogs.entries = append(s.auditLogs.entries, t.AuditLog)

	ticket := s.tickets.tickets[t.TicketID]
	ticket.Status = t.TicketStatus
	level := t.ToLevel
	ticket.EscalationLevel = &level
	ticket.AssignedPartnerID = t.PartnerID
	target := t.SLATarget
	ticket.CurrentSLATarget = &target
	ticket.EscalationHistory = append(ticket.EscalationHistory, t.HistoryEvent)

	if t.PartnerID != nil {
		for _, p := range s.partners.partners {
			if p.ID == *t.PartnerID {
				p.TotalTicketsHandled++
			}
		}
	}
	s.applied = append(s.applied, t)
	return nil
}

type fakeEventDispatcher struct {
	published []events.Event
}

func (d *fakeEventDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return nil
}

func (d *fakeEventDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *fakeEventDispatcher) ofType(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, e := range d.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeWebhookDispatcher struct {
	deliveries []webhook.Notification
	err        error
}

func (d *fakeWebhookDispatcher) Dispatch(ctx context.Context, partner *domain.Partner, n webhook.Notification) error {
	d.deliveries = append(d.deliveries, n)
	return d.err
}

type harness struct {
	clock      *fakeClock
	tickets    *fakeTicketRepo
	slaLogs    *fakeSLALogRepo
	partners   *fakePartnerRepo
	rules      *fakeRuleRepo
	statusLogs *fakeStatusLogRepo
	auditLogs  *fakeAuditLogRepo
	store      *fakeStore
	webhooks   *fakeWebhookDispatcher
	events     *fakeEventDispatcher
	engine     *Engine
}

func newHarness(t *testing.T, cfg config.EngineConfig, tickets ...*domain.Ticket) *harness {
	t.Helper()
	h := &harness{
		clock:      &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		tickets:    newFakeTicketRepo(tickets...),
		slaLogs:    &fakeSLALogRepo{},
		partners:   &fakePartnerRepo{},
		rules:      &fakeRuleRepo{},
		statusLogs: &fakeStatusLogRepo{},
		auditLogs:  &fakeAuditLogRepo{},
		webhooks:   &fakeWebhookDispatcher{},
		events:     &fakeEventDispatcher{},
	}
	h.store = &fakeStore{
		tickets:     h.tickets,
		slaLogs:     h.slaLogs,
		partners:    h.partners,
		statusLogs:  h.statusLogs,
		auditLogs:   h.auditLogs,
		tablesExist: true,
	}
	logger := zap.NewNop()
	rules := NewRuleResolver(h.rules, logger)
	audit := NewAuditRecorder(h.statusLogs, h.auditLogs, logger)
	metrics := observability.NewMetrics()
	repairer := NewRepairer(h.clock, h.tickets, h.slaLogs, rules, audit, metrics, logger)
	h.engine = New(Dependencies{
		Clock:    h.clock,
		Store:    h.store,
		Tickets:  h.tickets,
		SLALogs:  h.slaLogs,
		Partners: NewPartnerDirectory(h.partners),
		Rules:    rules,
		Repairer: repairer,
		Audit:    audit,
		Webhooks: h.webhooks,
		Events:   h.events,
		Metrics:  metrics,
		Logger:   logger,
		Config:   cfg,
	})
	return h
}

func defaultEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		TickIntervalSeconds:    300,
		AtRiskThresholdMinutes: 30,
		ShutdownJoinSeconds:    1,
		TopTierBreachPolicy:    config.TopTierAuditOnly,
	}
}

func level(n int) *int { return &n }

func mediumTicket(id int64, createdAt time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:              id,
		Subject:         "printer on fire",
		Priority:        domain.TicketPriorityMedium,
		Status:          domain.TicketStatusOpen,
		CreatedAt:       createdAt,
		EscalationLevel: level(domain.LevelBot),
	}
}

func icpPartner(id int64, handled int) *domain.Partner {
	url := "https://partner.example/webhook"
	return &domain.Partner{
		ID:                  id,
		Name:                "Acme Support",
		Tier:                domain.PartnerTierICP,
		Status:              domain.PartnerStatusActive,
		WebhookURL:          &url,
		TotalTicketsHandled: handled,
	}
}

func TestTickEscalatesBreachedTicket(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ticket := mediumTicket(1, createdAt)
	h := newHarness(t, defaultEngineConfig(), ticket)
	h.partners.partners = []*domain.Partner{icpPartner(9, 12), icpPartner(7, 3)}

	// ICP-level log that breached four hours ago.
	target := h.clock.now.Add(8 * time.Hour)
	ticket.EscalationLevel = level(domain.LevelICP)
	ticket.CurrentSLATarget = &target
	h.slaLogs.add(domain.SLALog{
		TicketID:        1,
		EscalationLevel: domain.LevelICP,
		LevelName:       domain.LevelName(domain.LevelICP),
		SLATargetHours:  8,
		Status:          domain.SLAStatusOnTime,
		CreatedAt:       h.clock.now.Add(-12 * time.Hour),
		LoggedAt:        h.clock.now.Add(-12 * time.Hour),
	})

	require.NoError(t, h.engine.Tick(context.Background()))

	updated := h.tickets.tickets[1]
	assert.Equal(t, domain.LevelYouCloud, updated.Level())
	assert.Equal(t, domain.TicketStatusEscalated, updated.Status)

	prev := h.slaLogs.byID(1)
	assert.True(t, prev.IsBreached)
	assert.NotNil(t, prev.EscalatedAt)
	assert.NotNil(t, prev.BreachTime)

	latest, err := h.slaLogs.LatestByTicket(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelYouCloud, latest.EscalationLevel)
	assert.Equal(t, domain.SLAStatusOnTime, latest.Status)
	assert.Equal(t, 8.0, latest.SLATargetHours)
}

func TestTickPicksLeastLoadedPartnerAndBumpsCounter(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ticket := mediumTicket(1, createdAt)
	h := newHarness(t, defaultEngineConfig(), ticket)
	busy := icpPartner(9, 12)
	idle := icpPartner(7, 3)
	h.partners.partners = []*domain.Partner{busy, idle}

	h.slaLogs.add(domain.SLALog{
		TicketID:        1,
		EscalationLevel: domain.LevelBot,
		LevelName:       domain.LevelName(domain.LevelBot),
		SLATargetHours:  0,
		Status:          domain.SLAStatusOnTime,
		CreatedAt:       createdAt,
		LoggedAt:        createdAt,
	})

	require.NoError(t, h.engine.Tick(context.Background()))

	updated := h.tickets.tickets[1]
	require.NotNil(t, updated.AssignedPartnerID)
	assert.Equal(t, int64(7), *updated.AssignedPartnerID)
	assert.Equal(t, 4, idle.TotalTicketsHandled)
	assert.Equal(t, 12, busy.TotalTicketsHandled)

	require.Len(t, h.webhooks.deliveries, 1)
	delivery := h.webhooks.deliveries[0]
	assert.Equal(t, "ticket_escalated", delivery.Event)
	assert.Equal(t, int64(1), delivery.Ticket.ID)
	assert.Equal(t, domain.LevelICP, delivery.Escalation.Level)
	assert.Equal(t, "Acme Support", delivery.Partner.Name)
}

func TestTickEscalatesAgainOnceNewDeadlinePasses(t *testing.T) {
	h := newHarness(t, defaultEngineConfig())
	createdAt := h.clock.now.Add(-5 * time.Hour)
	ticket := mediumTicket(1, createdAt)
	ticket.Priority = domain.TicketPriorityCritical
	h.tickets.tickets[1] = ticket
	ycp := icpPartner(9, 0)
	ycp.Tier = domain.PartnerTierYCP
	h.partners.partners = []*domain.Partner{icpPartner(3, 0), ycp}

	h.slaLogs.add(domain.SLALog{
		TicketID:        1,
		EscalationLevel: domain.LevelBot,
		LevelName:       domain.LevelName(domain.LevelBot),
		Status:          domain.SLAStatusOnTime,
		CreatedAt:       createdAt,
		LoggedAt:        createdAt,
	})

	// Bot deadline for critical is immediate; first tick reaches ICP.
	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Equal(t, domain.LevelICP, h.tickets.tickets[1].Level())
	require.NotNil(t, h.tickets.tickets[1].AssignedPartnerID)
	assert.Equal(t, int64(3), *h.tickets.tickets[1].AssignedPartnerID)

	// Second tick at the same instant: the ICP log is an hour from its
	// deadline, so nothing moves.
	applied := len(h.store.applied)
	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Equal(t, applied, len(h.store.applied))

	h.clock.Advance(2 * time.Hour)
	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Equal(t, domain.LevelYouCloud, h.tickets.tickets[1].Level())
	assert.Equal(t, int64(9), *h.tickets.tickets[1].AssignedPartnerID)
}

func TestTickIsIdempotentAcrossRuns(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ticket := mediumTicket(1, createdAt)
	h := newHarness(t, defaultEngineConfig(), ticket)
	h.partners.partners = []*domain.Partner{icpPartner(7, 0)}

	h.slaLogs.add(domain.SLALog{
		TicketID:        1,
		EscalationLevel: domain.LevelBot,
		LevelName:       domain.LevelName(domain.LevelBot),
		Status:          domain.SLAStatusOnTime,
		CreatedAt:       createdAt,
		LoggedAt:        createdAt,
	})

	require.NoError(t, h.engine.Tick(context.Background()))
	firstCount := len(h.store.applied)
	require.NoError(t, h.engine.Tick(context.Background()))

	// Second tick sees a fresh on-time ICP log; no duplicate transition.
	assert.Equal(t, firstCount, len(h.store.applied))
	assert.Equal(t, domain.LevelICP, h.tickets.tickets[1].Level())
}

func TestTickWithoutPartnerStillEscalates(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ticket := mediumTicket(1, createdAt)
	h := newHarness(t, defaultEngineConfig(), ticket)

	h.slaLogs.add(domain.SLALog{
		TicketID:        1,
		EscalationLevel: domain.LevelBot,
		LevelName:       domain.LevelName(domain.LevelBot),
		Status:          domain.SLAStatusOnTime,
		CreatedAt:       createdAt,
		LoggedAt:        createdAt,
	})

	require.NoError(t, h.engine.Tick(context.Background()))

	updated := h.tickets.tickets[1]
	assert.Equal(t, domain.LevelICP, updated.Level())
	assert.Nil(t, updated.AssignedPartnerID)
	assert.Empty(t, h.webhooks.deliveries)

	require.NotEmpty(t, h.auditLogs.entries)
	last := h.auditLogs.entries[len(h.auditLogs.entries)-1]
	assert.Equal(t, domain.AuditActionAutoEscalated, last.Action)
	assert.Equal(t, true, last.Details["no_partner_available"])
}

func TestWebhookFailureDoesNotUnwindEscalation(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ticket := mediumTicket(1, createdAt)
	h := newHarness(t, defaultEngineConfig(), ticket)
	h.partners.partners = []*domain.Partner{icpPartner(7, 0)}
	h.webhooks.err = errors.New("endpoint down")

	h.slaLogs.add(domain.SLALog{
		TicketID:        1,
		EscalationLevel: domain.LevelBot,
		LevelName:       domain.LevelName(domain.LevelBot),
		Status:          domain.SLAStatusOnTime,
		CreatedAt:       createdAt,
		LoggedAt:        createdAt,
	})

	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Equal(t, domain.LevelICP, h.tickets.tickets[1].Level())
	assert.Len(t, h.webhooks.deliveries, 1)

	// Next tick does not redeliver: the sealed log blocks a second transition.
	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Len(t, h.webhooks.deliveries, 1)
}

func TestForceEscalateSkipsIntermediateLevel(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ticket := mediumTicket(1, createdAt)
	target := createdAt.Add(8 * time.Hour)
	ticket.CurrentSLATarget = &target
	h := newHarness(t, defaultEngineConfig(), ticket)
	ycp := icpPartner(11, 0)
	ycp.Tier = domain.PartnerTierYCP
	h.partners.partners = []*domain.Partner{ycp}

	h.slaLogs.add(domain.SLALog{
		TicketID:        1,
		EscalationLevel: domain.LevelBot,
		LevelName:       domain.LevelName(domain.LevelBot),
		Status:          domain.SLAStatusOnTime,
		CreatedAt:       createdAt,
		LoggedAt:        createdAt,
	})

	result, err := h.engine.ForceEscalate(context.Background(), 1, domain.LevelYouCloud, 42, "VIP customer")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelYouCloud, result.NewLevel)
	require.NotNil(t, result.AssignedPartnerID)
	assert.Equal(t, int64(11), *result.AssignedPartnerID)

	// No intermediate ICP log was created.
	exists, err := h.slaLogs.ExistsForLevel(context.Background(), 1, domain.LevelICP)
	require.NoError(t, err)
	assert.False(t, exists)

	require.Len(t, h.store.applied, 1)
	applied := h.store.applied[0]
	assert.Equal(t, domain.AuditActionForceEscalated, applied.AuditLog.Action)
	require.NotNil(t, applied.AuditLog.UserID)
	assert.Equal(t, int64(42), *applied.AuditLog.UserID)
	assert.Contains(t, applied.StatusLog.Notes, "VIP customer")
	assert.False(t, applied.HistoryEvent.Auto)
}

func TestForceEscalateValidation(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	open := mediumTicket(1, createdAt)
	escalated := mediumTicket(2, createdAt)
	escalated.EscalationLevel = level(domain.LevelYouCloud)
	closed := mediumTicket(3, createdAt)
	closed.Status = domain.TicketStatusClosed
	h := newHarness(t, defaultEngineConfig(), open, escalated, closed)

	tests := []struct {
		name     string
		ticketID int64
		level    int
		wantKind util.ErrorKind
	}{
		{"level zero rejected", 1, 0, util.KindOperatorInputInvalid},
		{"level above max rejected", 1, 3, util.KindOperatorInputInvalid},
		{"unknown ticket", 99, 2, util.KindNotFound},
		{"already at target level", 2, 2, util.KindOperatorInputInvalid},
		{"closed ticket", 3, 1, util.KindOperatorInputInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.ForceEscalate(context.Background(), tt.ticketID, tt.level, 42, "")
			require.Error(t, err)
			assert.True(t, util.IsKind(err, tt.wantKind), "got %v", err)
		})
	}
}

func TestTopTierBreachAuditOnly(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ticket := mediumTicket(1, createdAt)
	ticket.EscalationLevel = level(domain.LevelYouCloud)
	h := newHarness(t, defaultEngineConfig(), ticket)

	h.slaLogs.add(domain.SLALog{
		TicketID:        1,
		EscalationLevel: domain.LevelYouCloud,
		LevelName:       domain.LevelName(domain.LevelYouCloud),
		SLATargetHours:  8,
		Status:          domain.SLAStatusOnTime,
		CreatedAt:       createdAt,
		LoggedAt:        createdAt,
	})

	require.NoError(t, h.engine.Tick(context.Background()))

	log := h.slaLogs.byID(1)
	assert.True(t, log.IsBreached)
	assert.Nil(t, log.EscalatedAt)
	assert.Equal(t, domain.LevelYouCloud, h.tickets.tickets[1].Level())
	assert.Contains(t, h.auditLogs.actions(), domain.AuditActionTopTierBreach)

	// A second tick must not duplicate the breach audit.
	before := len(h.auditLogs.entries)
	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Equal(t, before, len(h.auditLogs.entries))
}

func TestTopTierBreachExtendSLA(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ticket := mediumTicket(1, createdAt)
	ticket.EscalationLevel = level(domain.LevelYouCloud)
	cfg := defaultEngineConfig()
	cfg.TopTierBreachPolicy = config.TopTierExtendSLA
	h := newHarness(t, cfg, ticket)

	h.slaLogs.add(domain.SLALog{
		TicketID:        1,
		EscalationLevel: domain.LevelYouCloud,
		LevelName:       domain.LevelName(domain.LevelYouCloud),
		SLATargetHours:  8,
		Status:          domain.SLAStatusOnTime,
		CreatedAt:       createdAt,
		LoggedAt:        createdAt,
	})

	require.NoError(t, h.engine.Tick(context.Background()))

	log := h.slaLogs.byID(1)
	assert.False(t, log.IsBreached)
	assert.Equal(t, 10.0, log.SLATargetHours)
	assert.Contains(t, h.auditLogs.actions(), domain.AuditActionSLAExtended)
}

func TestTickRepairsLegacyTicket(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	legacy := "supervisor"
	ticket := &domain.Ticket{
		ID:                    1,
		Subject:               "old row",
		Priority:              domain.TicketPriorityHigh,
		Status:                domain.TicketStatusOpen,
		CreatedAt:             createdAt,
		LegacyEscalationLevel: &legacy,
	}
	h := newHarness(t, defaultEngineConfig(), ticket)
	h.partners.partners = []*domain.Partner{icpPartner(7, 0)}

	require.NoError(t, h.engine.Tick(context.Background()))

	repaired := h.tickets.tickets[1]
	assert.Nil(t, repaired.LegacyEscalationLevel)
	assert.NotNil(t, repaired.CurrentSLATarget)

	// The level-1 log was created at ticket creation time and, being past
	// its 4h target, escalated on the same tick.
	assert.Equal(t, domain.LevelYouCloud, repaired.Level())

	repairsPublished := h.events.ofType(events.EventTicketRepaired)
	require.NotEmpty(t, repairsPublished)
	steps := make([]string, 0, len(repairsPublished))
	for _, event := range repairsPublished {
		assert.Equal(t, int64(1), event.TicketID)
		assert.Equal(t, domain.ActorTypeSystem, event.Actor.Type)
		payload, ok := event.Payload.(events.TicketRepairedPayload)
		require.True(t, ok)
		steps = append(steps, payload.Step)
	}
	assert.Contains(t, steps, "legacy_escalation_level")

	for _, action := range h.auditLogs.actions() {
		if action == domain.AuditActionRepairPrefix+"legacy_escalation_level" {
			return
		}
	}
	t.Fatalf("missing legacy level repair audit, got %v", h.auditLogs.actions())
}

func TestTickSkipsWhenTablesMissing(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ticket := mediumTicket(1, createdAt)
	h := newHarness(t, defaultEngineConfig(), ticket)
	h.store.tablesExist = false

	require.NoError(t, h.engine.Tick(context.Background()))
	assert.Empty(t, h.store.applied)
	assert.Equal(t, domain.LevelBot, h.tickets.tickets[1].Level())
}

func TestOverviewBucketsTickets(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	onTime := mediumTicket(1, now.Add(-time.Hour))
	atRisk := mediumTicket(2, now.Add(-time.Hour))
	breached := mediumTicket(3, now.Add(-time.Hour))
	h := newHarness(t, defaultEngineConfig(), onTime, atRisk, breached)
	h.clock.now = now

	h.slaLogs.add(domain.SLALog{TicketID: 1, EscalationLevel: domain.LevelICP,
		SLATargetHours: 8, CreatedAt: now.Add(-time.Hour), LoggedAt: now})
	h.slaLogs.add(domain.SLALog{TicketID: 2, EscalationLevel: domain.LevelICP,
		SLATargetHours: 1, CreatedAt: now.Add(-45 * time.Minute), LoggedAt: now})
	h.slaLogs.add(domain.SLALog{TicketID: 3, EscalationLevel: domain.LevelICP,
		SLATargetHours: 1, CreatedAt: now.Add(-2 * time.Hour), LoggedAt: now})

	overview, err := h.engine.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, overview.WithinSLA.TicketIDs)
	assert.Equal(t, []int64{2}, overview.AtRisk.TicketIDs)
	assert.Equal(t, []int64{3}, overview.Breached.TicketIDs)
}
