package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/uxone/internal/application/service"
	"github.com/garyjia/uxone/internal/domain/entity"
	"github.com/garyjia/uxone/internal/domain/event"
	"github.com/garyjia/uxone/internal/infrastructure/metrics"
)

const testSecret = "test-secret"

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeApproval struct {
	createFn   func(ctx context.Context, cmd service.CreateAggregateCommand) (*entity.WorkflowAggregate, error)
	getFn      func(ctx context.Context, id int64) (*entity.WorkflowAggregate, error)
	getCodeFn  func(ctx context.Context, code string) (*entity.WorkflowAggregate, error)
	listFn     func(ctx context.Context, filter entity.AggregateFilter) ([]*entity.WorkflowAggregate, error)
	decisionFn func(ctx context.Context, cmd service.RecordDecisionCommand) (*entity.WorkflowAggregate, error)
}

func (f *fakeApproval) CreateAggregate(ctx context.Context, cmd service.CreateAggregateCommand) (*entity.WorkflowAggregate, error) {
	return f.createFn(ctx, cmd)
}

func (f *fakeApproval) GetAggregate(ctx context.Context, id int64) (*entity.WorkflowAggregate, error) {
	return f.getFn(ctx, id)
}

func (f *fakeApproval) GetAggregateByCode(ctx context.Context, code string) (*entity.WorkflowAggregate, error) {
	return f.getCodeFn(ctx, code)
}

func (f *fakeApproval) ListAggregates(ctx context.Context, filter entity.AggregateFilter) ([]*entity.WorkflowAggregate, error) {
	return f.listFn(ctx, filter)
}

func (f *fakeApproval) RecordDecision(ctx context.Context, cmd service.RecordDecisionCommand) (*entity.WorkflowAggregate, error) {
	return f.decisionFn(ctx, cmd)
}

type fakeSequence struct {
	nextFn func(ctx context.Context, family string) (string, error)
}

func (f *fakeSequence) NextIdentifier(ctx context.Context, family string) (string, error) {
	return f.nextFn(ctx, family)
}

func (f *fakeSequence) Preview(ctx context.Context, family string) (string, error) {
	return "", nil
}

func (f *fakeSequence) Families() []entity.SequenceFamily { return nil }

type fakeExport struct {
	result *service.ExportResult
	err    error
}

func (f *fakeExport) ExportApprovalLog(ctx context.Context, aggregateID int64) (*service.ExportResult, error) {
	return f.result, f.err
}

type fakeInventory struct {
	items       map[string]*entity.InventoryItem
	invalidated []string
	purged      bool
}

func (f *fakeInventory) GetItem(ctx context.Context, sku string) (*entity.InventoryItem, error) {
	if item, ok := f.items[sku]; ok {
		return item, nil
	}
	return nil, fmt.Errorf("%w: sku %s", entity.ErrNotFound, sku)
}

func (f *fakeInventory) Invalidate(ctx context.Context, sku string) error {
	f.invalidated = append(f.invalidated, sku)
	return nil
}

func (f *fakeInventory) InvalidateAll(ctx context.Context) error {
	f.purged = true
	return nil
}

type fakeNotifications struct {
	recipient string
	list      []*entity.Notification
}

func (f *fakeNotifications) HandleDecisionRecorded(ctx context.Context, evt *event.Event) error {
	return nil
}

func (f *fakeNotifications) BuildDecisionNotifications(ctx context.Context, agg *entity.WorkflowAggregate, notice service.DecisionNotice) ([]*entity.Notification, error) {
	return nil, nil
}

func (f *fakeNotifications) NotifyDecision(ctx context.Context, agg *entity.WorkflowAggregate, notice service.DecisionNotice) ([]*entity.Notification, error) {
	return nil, nil
}

func (f *fakeNotifications) RedeliverFailed(ctx context.Context, limit int) (int, error) {
	return 0, nil
}

func (f *fakeNotifications) ListForRecipient(ctx context.Context, userID string, limit, offset int) ([]*entity.Notification, error) {
	f.recipient = userID
	return f.list, nil
}

type testEnv struct {
	server    *Server
	auth      *TokenAuthenticator
	approval  *fakeApproval
	sequence  *fakeSequence
	export    *fakeExport
	inventory *fakeInventory
	notifs    *fakeNotifications
	metrics   *metrics.Metrics
}

func sampleAggregate() *entity.WorkflowAggregate {
	return &entity.WorkflowAggregate{
		ID:          1,
		Code:        "PRJ-20261017-001",
		Kind:        entity.KindProject,
		Title:       "Line 3 retrofit",
		OwnerID:     "owner-1",
		Departments: []entity.Department{entity.DepartmentQA},
		ApprovalLog: entity.ApprovalLog{},
		Status:      entity.StatusPending,
		Version:     1,
	}
}

func newTestEnv(t *testing.T, withInventory bool) *testEnv {
	t.Helper()
	env := &testEnv{
		auth: NewTokenAuthenticator(testSecret, ""),
		approval: &fakeApproval{
			getFn: func(ctx context.Context, id int64) (*entity.WorkflowAggregate, error) {
				if id != 1 {
					return nil, fmt.Errorf("%w: aggregate %d", entity.ErrNotFound, id)
				}
				return sampleAggregate(), nil
			},
		},
		sequence: &fakeSequence{},
		export:   &fakeExport{},
		notifs:   &fakeNotifications{},
	}

	services := Services{
		Approval:     env.approval,
		Sequence:     env.sequence,
		Export:       env.export,
		Notification: env.notifs,
	}
	if withInventory {
		env.inventory = &fakeInventory{items: map[string]*entity.InventoryItem{
			"SKU-1": {SKU: "SKU-1", OnHand: 10, Reserved: 4},
		}}
		services.Inventory = env.inventory
	}

	reg := prometheus.NewRegistry()
	env.metrics = metrics.New(reg)

	cfg := DefaultServerConfig()
	cfg.Mode = gin.TestMode
	env.server = NewServer(cfg, services, env.auth, nopLogger{}, WithMetrics(env.metrics, reg))
	return env
}

func (e *testEnv) token(t *testing.T, actor entity.Actor) string {
	t.Helper()
	tok, err := e.auth.Issue(actor, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

var qaHead = entity.Actor{UserID: "qa-head", Department: entity.DepartmentQA, Role: entity.RoleDepartmentHead}

func TestHealthAndMetricsArePublic(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "uxone_http_requests_total")
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, false)

	expired, err := env.auth.Issue(qaHead, -time.Minute)
	require.NoError(t, err)

	otherKey, err := NewTokenAuthenticator("other-secret", "").Issue(qaHead, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "x"},
		Role:             "ADMIN",
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "x"},
		Role:             "overlord",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"expired", expired},
		{"wrong key", otherKey},
		{"alg none", unsigned},
		{"unknown role", badRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/aggregates/1", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.False(t, decode(t, w).Success)
		})
	}
}

func TestAuthenticateNormalizesClaims(t *testing.T) {
	auth := NewTokenAuthenticator(testSecret, "uxone")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "uxone"},
		Department:       "Quality Assurance",
		Role:             "dept-head",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	actor, err := auth.Authenticate(tok)
	require.NoError(t, err)
	assert.Equal(t, entity.Actor{UserID: "u1", Department: entity.DepartmentQA, Role: entity.RoleDepartmentHead}, actor)

	wrongIssuer, err := NewTokenAuthenticator(testSecret, "elsewhere").Issue(qaHead, time.Hour)
	require.NoError(t, err)
	_, err = auth.Authenticate(wrongIssuer)
	assert.Error(t, err)
}

func TestRecordDecision_PassesActorAndBody(t *testing.T) {
	env := newTestEnv(t, false)

	var got service.RecordDecisionCommand
	env.approval.decisionFn = func(ctx context.Context, cmd service.RecordDecisionCommand) (*entity.WorkflowAggregate, error) {
		got = cmd
		agg := sampleAggregate()
		agg.ApprovalLog.Append(entity.DepartmentQA, entity.DecisionRecord{Status: entity.DecisionApproved, Actor: "qa-head"})
		agg.Status = entity.StatusApproved
		agg.Released = true
		return agg, nil
	}

	w := env.do(t, http.MethodPost, "/api/v1/aggregates/1/decisions", env.token(t, qaHead),
		DecisionRequest{Department: "QA", Action: "approve", Comment: "ok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, int64(1), got.AggregateID)
	assert.Equal(t, "QA", got.Department)
	assert.Equal(t, "approve", got.Action)
	assert.Equal(t, qaHead, got.Actor)

	var body struct {
		Data struct {
			Status             string                    `json:"status"`
			Released           bool                      `json:"released"`
			Link               string                    `json:"link"`
			DepartmentStatuses []entity.DepartmentStatus `json:"department_statuses"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "APPROVED", body.Data.Status)
	assert.True(t, body.Data.Released)
	assert.Equal(t, "/projects/PRJ-20261017-001", body.Data.Link)
	require.Len(t, body.Data.DepartmentStatuses, 1)
	assert.Equal(t, entity.StatusApproved, body.Data.DepartmentStatuses[0].Status)
}

func TestRecordDecision_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		retryable bool
	}{
		{"validation", fmt.Errorf("%w: department not required", entity.ErrValidation), http.StatusBadRequest, false},
		{"forbidden", fmt.Errorf("%w: wrong department", entity.ErrForbidden), http.StatusForbidden, false},
		{"not found", fmt.Errorf("%w: aggregate 1", entity.ErrNotFound), http.StatusNotFound, false},
		{"finalized", entity.ErrAlreadyFinalized, http.StatusConflict, false},
		{"concurrent", entity.ErrConcurrentModification, http.StatusConflict, true},
		{"exhausted", entity.ErrSequenceExhausted, http.StatusServiceUnavailable, true},
		{"internal", fmt.Errorf("disk on fire"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			env.approval.decisionFn = func(ctx context.Context, cmd service.RecordDecisionCommand) (*entity.WorkflowAggregate, error) {
				return nil, tt.err
			}

			w := env.do(t, http.MethodPost, "/api/v1/aggregates/1/decisions", env.token(t, qaHead),
				DecisionRequest{Department: "qa", Action: "approved"})
			assert.Equal(t, tt.status, w.Code)

			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.retryable, resp.Retryable)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, resp.Error, "disk on fire")
			}
		})
	}
}

func TestRecordDecision_RejectsMalformedInput(t *testing.T) {
	env := newTestEnv(t, false)
	called := false
	env.approval.decisionFn = func(ctx context.Context, cmd service.RecordDecisionCommand) (*entity.WorkflowAggregate, error) {
		called = true
		return sampleAggregate(), nil
	}
	tok := env.token(t, qaHead)

	tests := []struct {
		name string
		path string
		body interface{}
	}{
		{"bad id", "/api/v1/aggregates/abc/decisions", DecisionRequest{Department: "qa", Action: "approved"}},
		{"unknown action", "/api/v1/aggregates/1/decisions", DecisionRequest{Department: "qa", Action: "maybe"}},
		{"unknown department", "/api/v1/aggregates/1/decisions", DecisionRequest{Department: "marketing", Action: "approved"}},
		{"missing department", "/api/v1/aggregates/1/decisions", DecisionRequest{Action: "approved"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tok, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.False(t, called)
}

func TestCreateAggregate_DefaultsOwnerToCaller(t *testing.T) {
	env := newTestEnv(t, false)
	var got service.CreateAggregateCommand
	env.approval.createFn = func(ctx context.Context, cmd service.CreateAggregateCommand) (*entity.WorkflowAggregate, error) {
		got = cmd
		return sampleAggregate(), nil
	}

	w := env.do(t, http.MethodPost, "/api/v1/aggregates", env.token(t, qaHead), map[string]interface{}{
		"kind": "project", "title": "Line 3 retrofit", "departments": []string{"qa"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "qa-head", got.OwnerID)

	w = env.do(t, http.MethodPost, "/api/v1/aggregates", env.token(t, qaHead), map[string]interface{}{
		"kind": "widget", "title": "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndLookup(t *testing.T) {
	env := newTestEnv(t, false)
	var filter entity.AggregateFilter
	env.approval.listFn = func(ctx context.Context, f entity.AggregateFilter) ([]*entity.WorkflowAggregate, error) {
		filter = f
		return []*entity.WorkflowAggregate{sampleAggregate()}, nil
	}
	env.approval.getCodeFn = func(ctx context.Context, code string) (*entity.WorkflowAggregate, error) {
		if code == "PRJ-20261017-001" {
			return sampleAggregate(), nil
		}
		return nil, entity.ErrNotFound
	}
	tok := env.token(t, qaHead)

	w := env.do(t, http.MethodGet, "/api/v1/aggregates?kind=demand&status=pending&limit=5", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.KindDemand, filter.Kind)
	assert.Equal(t, entity.StatusPending, filter.Status)
	assert.Equal(t, 5, filter.Limit)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/aggregates/code/PRJ-20261017-001", tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/aggregates/code/nope", tok, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/aggregates/1", tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/aggregates/2", tok, nil).Code)
}

func TestNextIdentifier(t *testing.T) {
	env := newTestEnv(t, false)
	env.sequence.nextFn = func(ctx context.Context, family string) (string, error) {
		if family == "project" {
			return "PRJ-20261017-002", nil
		}
		return "", fmt.Errorf("%w: unknown family %q", entity.ErrValidation, family)
	}
	tok := env.token(t, qaHead)

	w := env.do(t, http.MethodPost, "/api/v1/sequences/project/next", tok, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "PRJ-20261017-002")

	w = env.do(t, http.MethodPost, "/api/v1/sequences/bogus/next", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportApprovalLog(t *testing.T) {
	env := newTestEnv(t, false)
	env.export.result = &service.ExportResult{
		Filename:    "PRJ-20261017-001-approval-log.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Content:     []byte("PK"),
	}

	w := env.do(t, http.MethodGet, "/api/v1/aggregates/1/export", env.token(t, qaHead), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, env.export.result.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "PRJ-20261017-001-approval-log.xlsx")
	assert.Equal(t, "PK", w.Body.String())
}

func TestInventoryRoutes(t *testing.T) {
	env := newTestEnv(t, true)
	staff := env.token(t, qaHead)
	admin := env.token(t, entity.Actor{UserID: "root", Role: entity.RoleAdmin})

	w := env.do(t, http.MethodGet, "/api/v1/inventory/SKU-1", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":6`)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/inventory/SKU-9", staff, nil).Code)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, "/api/v1/inventory/SKU-1", staff, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, "/api/v1/inventory", staff, nil).Code)
	assert.Empty(t, env.inventory.invalidated)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/v1/inventory/SKU-1", admin, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/v1/inventory", admin, nil).Code)
	assert.Equal(t, []string{"SKU-1"}, env.inventory.invalidated)
	assert.True(t, env.inventory.purged)
}

func TestInventoryDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(t, http.MethodGet, "/api/v1/inventory/SKU-1", env.token(t, qaHead), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListNotificationsForCaller(t *testing.T) {
	env := newTestEnv(t, false)
	env.notifs.list = []*entity.Notification{{ID: 1, RecipientUserID: "qa-head", Title: "Project PRJ-20261017-001 approved"}}

	w := env.do(t, http.MethodGet, "/api/v1/notifications", env.token(t, qaHead), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "qa-head", env.notifs.recipient)
	assert.Contains(t, w.Body.String(), "PRJ-20261017-001")
}
