package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/uxone/internal/domain/entity"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// memAggregateRepo keeps aggregates in memory and enforces the conditional update
type memAggregateRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*entity.WorkflowAggregate

	getByIDFunc        func(ctx context.Context, id int64) (*entity.WorkflowAggregate, error)
	updateDecisionFunc func(ctx context.Context, agg *entity.WorkflowAggregate, expectedVersion int64) error
	updates            int
}

func newMemAggregateRepo() *memAggregateRepo {
	return &memAggregateRepo{rows: make(map[int64]*entity.WorkflowAggregate)}
}

func cloneAggregate(a *entity.WorkflowAggregate) *entity.WorkflowAggregate {
	cp := *a
	cp.Departments = append([]entity.Department(nil), a.Departments...)
	cp.ApprovalLog = a.ApprovalLog.Clone()
	return &cp
}

func (m *memAggregateRepo) seed(agg *entity.WorkflowAggregate) *entity.WorkflowAggregate {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	agg.ID = m.nextID
	if agg.Version == 0 {
		agg.Version = 1
	}
	if agg.ApprovalLog == nil {
		agg.ApprovalLog = entity.ApprovalLog{}
	}
	m.rows[agg.ID] = cloneAggregate(agg)
	return agg
}

func (m *memAggregateRepo) Create(ctx context.Context, agg *entity.WorkflowAggregate) error {
	m.mu.Lock()
	for _, row := range m.rows {
		if row.Code == agg.Code {
			m.mu.Unlock()
			return fmt.Errorf("UNIQUE constraint failed: workflow_aggregates.code")
		}
	}
	m.mu.Unlock()
	m.seed(agg)
	return nil
}

func (m *memAggregateRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowAggregate, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return cloneAggregate(row), nil
}

func (m *memAggregateRepo) GetByCode(ctx context.Context, code string) (*entity.WorkflowAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Code == code {
			return cloneAggregate(row), nil
		}
	}
	return nil, nil
}

func (m *memAggregateRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	agg, err := m.GetByCode(ctx, code)
	return agg != nil, err
}

func (m *memAggregateRepo) List(ctx context.Context, filter entity.AggregateFilter) ([]*entity.WorkflowAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.WorkflowAggregate, 0, len(m.rows))
	for _, row := range m.rows {
		if filter.Kind != "" && row.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		out = append(out, cloneAggregate(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAggregateRepo) UpdateDecision(ctx context.Context, agg *entity.WorkflowAggregate, expectedVersion int64) error {
	if m.updateDecisionFunc != nil {
		return m.updateDecisionFunc(ctx, agg, expectedVersion)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[agg.ID]
	if !ok || row.Version != expectedVersion || row.Released {
		return entity.ErrVersionConflict
	}
	agg.Version = expectedVersion + 1
	m.rows[agg.ID] = cloneAggregate(agg)
	m.updates++
	return nil
}

func (m *memAggregateRepo) stored(id int64) *entity.WorkflowAggregate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAggregate(m.rows[id])
}

// memSequenceRepo is an atomic in-memory counter table
type memSequenceRepo struct {
	mu            sync.Mutex
	counters      map[string]int64
	incrementFunc func(ctx context.Context, family, bucketKey string) (int64, error)
}

func newMemSequenceRepo() *memSequenceRepo {
	return &memSequenceRepo{counters: make(map[string]int64)}
}

func (m *memSequenceRepo) Increment(ctx context.Context, family, bucketKey string) (int64, error) {
	if m.incrementFunc != nil {
		return m.incrementFunc(ctx, family, bucketKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[family+"/"+bucketKey]++
	return m.counters[family+"/"+bucketKey], nil
}

func (m *memSequenceRepo) Current(ctx context.Context, family, bucketKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[family+"/"+bucketKey], nil
}

func (m *memSequenceRepo) ListByFamily(ctx context.Context, family string, limit int) ([]*entity.SequenceCounter, error) {
	return nil, nil
}

type mockConfigRepo struct {
	values map[string]string
	getErr error
}

func (m *mockConfigRepo) Get(ctx context.Context, key string) (*entity.SystemConfig, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return &entity.SystemConfig{Key: key, Value: v}, nil
}

func (m *mockConfigRepo) Set(ctx context.Context, key, value, description string) error {
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

type mockLookup struct {
	existsFunc func(ctx context.Context, code string) (bool, error)
}

func (m *mockLookup) ExistsByCode(ctx context.Context, code string) (bool, error) {
	if m.existsFunc != nil {
		return m.existsFunc(ctx, code)
	}
	return false, nil
}

type mockNotificationRepo struct {
	mu       sync.Mutex
	nextID   int64
	created  []*entity.Notification
	status   map[int64]string
	errors   map[int64]string
	failed   []*entity.Notification
	createFn func(ctx context.Context, n *entity.Notification) error
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{status: map[int64]string{}, errors: map[int64]string{}}
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, n); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	m.created = append(m.created, n)
	m.status[n.ID] = n.Status
	return nil
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	return nil, nil
}

func (m *mockNotificationRepo) MarkSent(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[id] = entity.NotificationStatusSent
	return nil
}

func (m *mockNotificationRepo) MarkFailed(ctx context.Context, id int64, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[id] = entity.NotificationStatusFailed
	m.errors[id] = errorMsg
	return nil
}

func (m *mockNotificationRepo) ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	return m.failed, nil
}

func (m *mockNotificationRepo) ListByRecipient(ctx context.Context, userID string, limit, offset int) ([]*entity.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Notification
	for _, n := range m.created {
		if n.RecipientUserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) statusOf(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[id]
}

type mockUserRepo struct {
	users    map[string]*entity.User
	headsErr error
}

func (m *mockUserRepo) GetByID(ctx context.Context, userID string) (*entity.User, error) {
	return m.users[userID], nil
}

func (m *mockUserRepo) GetByLarkOpenID(ctx context.Context, openID string) (*entity.User, error) {
	for _, u := range m.users {
		if openID != "" && u.LarkOpenID == openID {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) ListDepartmentHeads(ctx context.Context, departments []entity.Department) ([]*entity.User, error) {
	if m.headsErr != nil {
		return nil, m.headsErr
	}
	want := map[entity.Department]bool{}
	for _, d := range departments {
		want[d] = true
	}
	var out []*entity.User
	for _, u := range m.users {
		if u.Role == entity.RoleDepartmentHead && want[u.Department] {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *mockUserRepo) Upsert(ctx context.Context, user *entity.User) error {
	m.users[user.UserID] = user
	return nil
}

type mockMessageSender struct {
	mu       sync.Mutex
	sent     map[string][]string
	sendFunc func(ctx context.Context, openID, content string) error
}

func (m *mockMessageSender) SendMessage(ctx context.Context, openID string, content string) error {
	if m.sendFunc != nil {
		if err := m.sendFunc(ctx, openID, content); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = map[string][]string{}
	}
	m.sent[openID] = append(m.sent[openID], content)
	return nil
}

func (m *mockMessageSender) SendCardMessage(ctx context.Context, openID string, cardContent interface{}) error {
	return nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{counts: map[string]int{}}
}

func (m *countingMetrics) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
}

func (m *countingMetrics) get(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *countingMetrics) SequenceAllocated(family string) { m.inc("alloc:" + family) }
func (m *countingMetrics) SequenceRetried(family, reason string) {
	m.inc("retry:" + family + ":" + reason)
}
func (m *countingMetrics) DecisionRecorded(kind, decision, status string) {
	m.inc("decision:" + decision + ":" + status)
}
func (m *countingMetrics) DecisionConflict()                 { m.inc("conflict") }
func (m *countingMetrics) NotificationDelivered(status string) { m.inc("notify:" + status) }
func (m *countingMetrics) InventoryCacheLookup(result string)  { m.inc("cache:" + result) }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
