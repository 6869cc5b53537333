package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluesky-social/guildmod/automod/countstore"
	"github.com/bluesky-social/guildmod/automod/policy"
	"github.com/bluesky-social/guildmod/automod/rulestore"
)

// One call made against MockBackend.
type MockCall struct {
	Action  policy.ActionType
	Request ActionRequest
	RoleID  string
	Content string
}

// In-memory Enforcer, Platform, and WarningHistory. Warn calls increment the member's warning count.
type MockBackend struct {
	mu       sync.Mutex
	Calls    []MockCall
	Fail     map[policy.ActionType]error
	Panic    map[policy.ActionType]bool
	OwnerID  string
	Warnings map[string]int
	cases    int
}

var (
	_ Enforcer       = (*MockBackend)(nil)
	_ Platform       = (*MockBackend)(nil)
	_ WarningHistory = (*MockBackend)(nil)
)

func NewMockBackend() *MockBackend {
	return &MockBackend{
		Fail:     make(map[policy.ActionType]error),
		Panic:    make(map[policy.ActionType]bool),
		Warnings: make(map[string]int),
	}
}

func (m *MockBackend) record(call MockCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Panic[call.Action] {
		panic(fmt.Sprintf("mock %s panic", call.Action))
	}
	if err := m.Fail[call.Action]; err != nil {
		return err
	}
	m.Calls = append(m.Calls, call)
	return nil
}

func (m *MockBackend) enforce(t policy.ActionType, req ActionRequest) (*EnforcementResult, error) {
	if err := m.record(MockCall{Action: t, Request: req}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases++
	return &EnforcementResult{CaseID: fmt.Sprintf("case-%d", m.cases)}, nil
}

func (m *MockBackend) Warn(ctx context.Context, req ActionRequest) (*EnforcementResult, error) {
	res, err := m.enforce(policy.ActionWarn, req)
	if err == nil {
		m.mu.Lock()
		m.Warnings[memberKey(req.GuildID, req.UserID)]++
		m.mu.Unlock()
	}
	return res, err
}

func (m *MockBackend) Mute(ctx context.Context, req ActionRequest) (*EnforcementResult, error) {
	return m.enforce(policy.ActionMute, req)
}

func (m *MockBackend) Kick(ctx context.Context, req ActionRequest) (*EnforcementResult, error) {
	return m.enforce(policy.ActionKick, req)
}

func (m *MockBackend) Ban(ctx context.Context, req ActionRequest) (*EnforcementResult, error) {
	return m.enforce(policy.ActionBan, req)
}

func (m *MockBackend) Timeout(ctx context.Context, req ActionRequest) (*EnforcementResult, error) {
	return m.enforce(policy.ActionTimeout, req)
}

func (m *MockBackend) DeleteMessage(ctx context.Context, guildID, channelID, messageID, reason string) error {
	return m.record(MockCall{Action: policy.ActionDelete, Request: ActionRequest{GuildID: guildID, ChannelID: channelID, MessageID: messageID, Reason: reason}})
}

func (m *MockBackend) AddRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return m.record(MockCall{Action: policy.ActionRoleAdd, Request: ActionRequest{GuildID: guildID, UserID: userID, Reason: reason}, RoleID: roleID})
}

func (m *MockBackend) RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return m.record(MockCall{Action: policy.ActionRoleRemove, Request: ActionRequest{GuildID: guildID, UserID: userID, Reason: reason}, RoleID: roleID})
}

func (m *MockBackend) SendDM(ctx context.Context, userID, content string) error {
	return m.record(MockCall{Action: policy.ActionDMUser, Request: ActionRequest{UserID: userID}, Content: content})
}

func (m *MockBackend) GuildOwnerID(ctx context.Context, guildID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.OwnerID, nil
}

func (m *MockBackend) GetWarningCount(ctx context.Context, guildID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Warnings[memberKey(guildID, userID)], nil
}

// Action types of all recorded calls, in order.
func (m *MockBackend) Actions() []policy.ActionType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]policy.ActionType, 0, len(m.Calls))
	for _, c := range m.Calls {
		out = append(out, c.Action)
	}
	return out
}

type MockAuditSink struct {
	mu      sync.Mutex
	Records []*AuditRecord
}

func (s *MockAuditSink) Record(ctx context.Context, rec *AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, rec)
	return nil
}

func (s *MockAuditSink) All() []*AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*AuditRecord(nil), s.Records...)
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent []*AuditRecord
}

func (n *MockNotifier) SendAudit(ctx context.Context, rec *AuditRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, rec)
	return nil
}

func (n *MockNotifier) All() []*AuditRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*AuditRecord(nil), n.Sent...)
}

// A Monday, mid-day UTC.
var FixtureTime = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// Engine wired entirely to in-memory collaborators, with a fixed clock at FixtureTime.
func EngineTestFixture() (*Engine, *MockBackend) {
	backend := NewMockBackend()
	store := rulestore.NewStore(slog.Default(), rulestore.NewMemRepository(), nil)
	counters := countstore.NewMemCountStore()
	eng := &Engine{
		Logger:    slog.Default(),
		Rules:     store,
		Enforcer:  backend,
		Platform:  backend,
		History:   backend,
		Joins:     &CountJoinTracker{Counters: counters},
		Rates:     NewRateTracker(time.Hour),
		Cooldowns: NewCooldownTracker(),
		Patterns:  NewPatternCache(64),
		Audit:     &MockAuditSink{},
		Notifiers: []Notifier{&MockNotifier{}},
		Counters:  counters,
		BotID:     "bot",
		Now:       func() time.Time { return FixtureTime },
	}
	return eng, backend
}
