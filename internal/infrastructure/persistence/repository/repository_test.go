package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/application/dispatcher"
	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/application/service"
	"github.com/garyjia/uxone/internal/domain/entity"
	"github.com/garyjia/uxone/internal/domain/event"
	"github.com/garyjia/uxone/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/uxone/pkg/database"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "uxone.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 8,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations())
	return sqlite.NewDB(db.DB, logger)
}

func newTestAggregate(code string, depts ...entity.Department) *entity.WorkflowAggregate {
	return &entity.WorkflowAggregate{
		Code:        code,
		Kind:        entity.KindProject,
		Title:       "Line 3 retrofit",
		OwnerID:     "owner-1",
		Departments: depts,
		ApprovalLog: entity.ApprovalLog{},
		Status:      entity.StatusPending,
	}
}

func TestAggregateRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAggregateRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	agg := newTestAggregate("PRJ-20261017-001", entity.DepartmentQA, entity.DepartmentLogistics)
	require.NoError(t, repo.Create(ctx, agg))
	assert.NotZero(t, agg.ID)
	assert.Equal(t, int64(1), agg.Version)

	got, err := repo.GetByID(ctx, agg.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, agg.Code, got.Code)
	assert.Equal(t, entity.KindProject, got.Kind)
	assert.Equal(t, []entity.Department{entity.DepartmentQA, entity.DepartmentLogistics}, got.Departments)
	assert.Empty(t, got.ApprovalLog)
	assert.False(t, got.Released)
	assert.Nil(t, got.ReleasedAt)

	byCode, err := repo.GetByCode(ctx, "PRJ-20261017-001")
	require.NoError(t, err)
	assert.Equal(t, agg.ID, byCode.ID)

	exists, err := repo.ExistsByCode(ctx, "PRJ-20261017-001")
	require.NoError(t, err)
	assert.True(t, exists)

	missing, err := repo.GetByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.Create(ctx, newTestAggregate("PRJ-20261017-001"))
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestAggregateRepository_UpdateDecision(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAggregateRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	agg := newTestAggregate("PRJ-20261017-002", entity.DepartmentQA)
	require.NoError(t, repo.Create(ctx, agg))

	decidedAt := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	agg.ApprovalLog.Append(entity.DepartmentQA, entity.DecisionRecord{
		Status: entity.DecisionApproved, Timestamp: decidedAt, Actor: "qa-1", Comment: "ok",
	})
	agg.Status = entity.StatusApproved
	agg.Released = true
	agg.ReleasedAt = &decidedAt
	agg.UpdatedAt = decidedAt

	stale := *agg
	require.NoError(t, repo.UpdateDecision(ctx, agg, 1))
	assert.Equal(t, int64(2), agg.Version)

	got, err := repo.GetByID(ctx, agg.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, got.Status)
	assert.True(t, got.Released)
	require.NotNil(t, got.ReleasedAt)
	assert.True(t, got.ReleasedAt.Equal(decidedAt))
	latest, ok := got.ApprovalLog.Latest(entity.DepartmentQA)
	require.True(t, ok)
	assert.Equal(t, "qa-1", latest.Actor)
	assert.True(t, latest.Timestamp.Equal(decidedAt))

	// Stale version loses
	err = repo.UpdateDecision(ctx, &stale, 1)
	assert.ErrorIs(t, err, entity.ErrVersionConflict)

	// Released rows are never rewritten, even at the current version
	err = repo.UpdateDecision(ctx, got, got.Version)
	assert.ErrorIs(t, err, entity.ErrVersionConflict)
}

func TestAggregateRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAggregateRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestAggregate("PRJ-20261017-001")))
	demand := newTestAggregate("DMD-20261017-001")
	demand.Kind = entity.KindDemand
	require.NoError(t, repo.Create(ctx, demand))
	rejected := newTestAggregate("PRJ-20261017-002")
	rejected.Status = entity.StatusRejected
	require.NoError(t, repo.Create(ctx, rejected))

	all, err := repo.List(ctx, entity.AggregateFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "PRJ-20261017-002", all[0].Code, "newest first")

	projects, err := repo.List(ctx, entity.AggregateFilter{Kind: entity.KindProject, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, projects, 2)

	pending, err := repo.List(ctx, entity.AggregateFilter{Kind: entity.KindProject, Status: entity.StatusPending, Limit: 10})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "PRJ-20261017-001", pending[0].Code)

	page, err := repo.List(ctx, entity.AggregateFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "DMD-20261017-001", page[0].Code)
}

func TestSequenceRepository_Increment(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSequenceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := repo.Increment(ctx, "project", "20261017")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := repo.Increment(ctx, "project", "20261018")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "buckets are independent")

	demand, err := repo.Increment(ctx, "demand", "20261017")
	require.NoError(t, err)
	assert.Equal(t, int64(1), demand, "families are independent")

	current, err := repo.Current(ctx, "project", "20261017")
	require.NoError(t, err)
	assert.Equal(t, int64(3), current)

	unused, err := repo.Current(ctx, "ticket", "20261017")
	require.NoError(t, err)
	assert.Zero(t, unused)

	counters, err := repo.ListByFamily(ctx, "project", 10)
	require.NoError(t, err)
	require.Len(t, counters, 2)
	assert.Equal(t, "20261018", counters[0].BucketKey)
}

func TestSequenceRepository_RollbackReleasesNothing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSequenceRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("caller failed")
	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		_, err := repo.Increment(txCtx, "ticket", "20261017")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	current, err := repo.Current(ctx, "ticket", "20261017")
	require.NoError(t, err)
	assert.Zero(t, current)
}

func TestSequenceGenerator_ConcurrentUniqueness(t *testing.T) {
	db := setupTestDB(t)
	aggRepo := NewAggregateRepository(db.DB, zap.NewNop())

	gen, err := service.NewSequenceGenerator(
		service.SequenceConfig{MaxAttempts: 10, BaseBackoff: time.Millisecond, MaxBackoff: 20 * time.Millisecond},
		NewSequenceRepository(db.DB, zap.NewNop()),
		NewSystemConfigRepository(db.DB, zap.NewNop()),
		map[string]port.IdentifierLookup{entity.FamilyProject: aggRepo},
		db,
		nopLogger{},
		service.WithClock(func() time.Time { return time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)

	const workers = 40
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]int)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := gen.NextIdentifier(context.Background(), entity.FamilyProject)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[id]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, workers)
	for id, n := range ids {
		assert.Equal(t, 1, n, "identifier %s handed out %d times", id, n)
	}
	assert.Contains(t, ids, "PRJ-20261017-001")
	assert.Contains(t, ids, "PRJ-20261017-040")
}

func TestApprovalService_EndToEnd(t *testing.T) {
	db := setupTestDB(t)
	aggRepo := NewAggregateRepository(db.DB, zap.NewNop())

	gen, err := service.NewSequenceGenerator(service.SequenceConfig{},
		NewSequenceRepository(db.DB, zap.NewNop()), nil,
		map[string]port.IdentifierLookup{entity.FamilyProject: aggRepo, entity.FamilyDemand: aggRepo},
		db, nopLogger{})
	require.NoError(t, err)

	svc := service.NewApprovalService(service.ApprovalConfig{MaxAttempts: 10, BaseBackoff: time.Millisecond},
		aggRepo, gen, db, nopLogger{})
	ctx := context.Background()

	depts := []string{"qa", "logistics", "pc", "production"}
	agg, err := svc.CreateAggregate(ctx, service.CreateAggregateCommand{
		Kind: "project", Title: "Line 3 retrofit", OwnerID: "owner-1", Departments: depts,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, d := range depts {
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			dept := entity.Department(d)
			_, err := svc.RecordDecision(ctx, service.RecordDecisionCommand{
				AggregateID: agg.ID,
				Department:  d,
				Action:      "approve",
				Actor:       entity.Actor{UserID: "u-" + d, Department: dept, Role: entity.RoleStaff},
			})
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()

	got, err := svc.GetAggregate(ctx, agg.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, got.Status)
	assert.True(t, got.Released)
	assert.Equal(t, 4, got.ApprovalLog.Entries())
	assert.Equal(t, int64(5), got.Version)

	_, err = svc.RecordDecision(ctx, service.RecordDecisionCommand{
		AggregateID: agg.ID, Department: "qa", Action: "reject",
		Actor: entity.Actor{UserID: "u-qa", Department: entity.DepartmentQA},
	})
	assert.ErrorIs(t, err, entity.ErrAlreadyFinalized)
}

type unreachableLark struct{}

func (unreachableLark) SendMessage(ctx context.Context, openID string, content string) error {
	return errors.New("lark unreachable")
}

func (unreachableLark) SendCardMessage(ctx context.Context, openID string, cardContent interface{}) error {
	return errors.New("lark unreachable")
}

func TestApprovalService_DecisionsCommitWhenDeliveryFails(t *testing.T) {
	modes := []struct {
		name string
		sync bool
	}{
		{name: "async events", sync: false},
		{name: "sync events", sync: true},
	}

	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			db := setupTestDB(t)
			ctx := context.Background()
			aggRepo := NewAggregateRepository(db.DB, zap.NewNop())
			notificationRepo := NewNotificationRepository(db.DB, zap.NewNop())
			userRepo := NewUserRepository(db.DB, zap.NewNop())

			require.NoError(t, userRepo.Upsert(ctx, &entity.User{
				UserID: "owner-1", DisplayName: "Owner", Department: entity.DepartmentSales,
				Role: entity.RoleStaff, LarkOpenID: "ou_owner",
			}))

			disp := dispatcher.NewDispatcher()
			opts := []service.Option{service.WithDispatcher(disp)}
			if mode.sync {
				opts = append(opts, service.WithSynchronousEvents())
			}

			notifier := service.NewNotificationService(service.NotificationConfig{MaxAttempts: 3},
				aggRepo, notificationRepo, userRepo, unreachableLark{}, nopLogger{})
			disp.Subscribe(event.TypeDecisionRecorded, "decision-notifier", "", notifier.HandleDecisionRecorded)

			gen, err := service.NewSequenceGenerator(service.SequenceConfig{},
				NewSequenceRepository(db.DB, zap.NewNop()), nil,
				map[string]port.IdentifierLookup{entity.FamilyProject: aggRepo},
				db, nopLogger{})
			require.NoError(t, err)
			svc := service.NewApprovalService(service.ApprovalConfig{}, aggRepo, gen, db, nopLogger{}, opts...)

			agg, err := svc.CreateAggregate(ctx, service.CreateAggregateCommand{
				Kind: "project", Title: "Line 3 retrofit", OwnerID: "owner-1",
				Departments: []string{"qa", "pc", "logistics"},
			})
			require.NoError(t, err)

			steps := []struct {
				dept entity.Department
				want entity.AggregateStatus
			}{
				{entity.DepartmentQA, entity.StatusPending},
				{entity.DepartmentPC, entity.StatusPending},
				{entity.DepartmentLogistics, entity.StatusApproved},
			}
			for _, step := range steps {
				updated, err := svc.RecordDecision(ctx, service.RecordDecisionCommand{
					AggregateID: agg.ID,
					Department:  string(step.dept),
					Action:      "approve",
					Actor:       entity.Actor{UserID: "head-" + string(step.dept), Department: step.dept, Role: entity.RoleDepartmentHead},
				})
				require.NoError(t, err, "delivery failure must not reach the caller")
				assert.Equal(t, step.want, updated.Status)

				stored, err := svc.GetAggregate(ctx, agg.ID)
				require.NoError(t, err)
				assert.Equal(t, step.want, stored.Status, "decision for %s must be committed", step.dept)
			}

			require.NoError(t, disp.Close())

			stored, err := svc.GetAggregate(ctx, agg.ID)
			require.NoError(t, err)
			assert.True(t, stored.Released)
			assert.Equal(t, 3, stored.ApprovalLog.Entries())

			rows, err := notificationRepo.ListByRecipient(ctx, "owner-1", 10, 0)
			require.NoError(t, err)
			require.Len(t, rows, 3)
			for _, n := range rows {
				assert.Equal(t, entity.NotificationStatusFailed, n.Status)
				assert.Contains(t, n.ErrorMessage, "lark unreachable")
			}
			assert.Equal(t, int64(3), disp.Stats().Delivered, "the handler swallows delivery errors")
		})
	}
}

func TestNotificationRepository(t *testing.T) {
	db := setupTestDB(t)
	aggRepo := NewAggregateRepository(db.DB, zap.NewNop())
	repo := NewNotificationRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	agg := newTestAggregate("PRJ-20261017-003")
	require.NoError(t, aggRepo.Create(ctx, agg))

	newNotification := func(uuid, recipient string) *entity.Notification {
		return &entity.Notification{
			UUID: uuid, AggregateID: agg.ID, RecipientUserID: recipient,
			Title: "Project PRJ-20261017-003 updated", Message: "QA approved",
			Type: entity.NotificationTypeInfo, Link: agg.Link(),
		}
	}

	sent := newNotification("n-1", "owner-1")
	failed := newNotification("n-2", "owner-1")
	exhausted := newNotification("n-3", "lg-head")
	for _, n := range []*entity.Notification{sent, failed, exhausted} {
		require.NoError(t, repo.Create(ctx, n))
	}

	require.NoError(t, repo.MarkSent(ctx, sent.ID))
	require.NoError(t, repo.MarkFailed(ctx, failed.ID, "lark: timeout"))
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.MarkFailed(ctx, exhausted.ID, "no open id"))
	}

	got, err := repo.GetByID(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.NotificationStatusSent, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.NotNil(t, got.SentAt)
	assert.Equal(t, "/projects/PRJ-20261017-003", got.Link)

	retry, err := repo.ListFailed(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, failed.ID, retry[0].ID)
	assert.Equal(t, "lark: timeout", retry[0].ErrorMessage)

	mine, err := repo.ListByRecipient(ctx, "owner-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	users := []*entity.User{
		{UserID: "qa-head", DisplayName: "QA Head", Department: entity.DepartmentQA, Role: entity.RoleDepartmentHead, LarkOpenID: "ou_qa"},
		{UserID: "qa-staff", Department: entity.DepartmentQA, Role: entity.RoleStaff},
		{UserID: "lg-head", Department: entity.DepartmentLogistics, Role: entity.RoleDepartmentHead},
		{UserID: "hr-head", Department: entity.DepartmentHR, Role: entity.RoleDepartmentHead},
	}
	for _, u := range users {
		require.NoError(t, repo.Upsert(ctx, u))
	}

	heads, err := repo.ListDepartmentHeads(ctx, []entity.Department{entity.DepartmentQA, entity.DepartmentLogistics})
	require.NoError(t, err)
	require.Len(t, heads, 2)
	assert.Equal(t, "lg-head", heads[0].UserID)
	assert.Equal(t, "qa-head", heads[1].UserID)

	users[0].LarkOpenID = "ou_qa_2"
	require.NoError(t, repo.Upsert(ctx, users[0]))
	got, err := repo.GetByID(ctx, "qa-head")
	require.NoError(t, err)
	assert.Equal(t, "ou_qa_2", got.LarkOpenID)

	none, err := repo.GetByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, none)

	byOpenID, err := repo.GetByLarkOpenID(ctx, "ou_qa_2")
	require.NoError(t, err)
	require.NotNil(t, byOpenID)
	assert.Equal(t, "qa-head", byOpenID.UserID)

	// Users without a Lark account share the empty open id and must never match
	blank, err := repo.GetByLarkOpenID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, blank)

	empty, err := repo.ListDepartmentHeads(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSystemConfigRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSystemConfigRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	seeded, err := repo.Get(ctx, "sequence.ticket.width")
	require.NoError(t, err)
	require.NotNil(t, seeded)
	assert.Equal(t, "4", seeded.Value)

	require.NoError(t, repo.Set(ctx, "sequence.ticket.width", "6", ""))
	updated, err := repo.Get(ctx, "sequence.ticket.width")
	require.NoError(t, err)
	assert.Equal(t, "6", updated.Value)
	assert.Equal(t, seeded.Description, updated.Description)

	missing, err := repo.Get(ctx, "sequence.unknown.width")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
