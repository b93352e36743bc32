package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/entity"
	"github.com/garyjia/uxone/internal/domain/event"
	"github.com/garyjia/uxone/internal/domain/workflow"
	"github.com/garyjia/uxone/pkg/utils"
)

// ApprovalConfig configures decision recording
type ApprovalConfig struct {
	ElevatedRoles []entity.Role
	MaxAttempts   int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
}

// CreateAggregateCommand carries the raw input for a new project or demand
type CreateAggregateCommand struct {
	Kind        string   `json:"kind" validate:"required,kind"`
	Title       string   `json:"title" validate:"required,max=200"`
	OwnerID     string   `json:"owner_id" validate:"required"`
	Departments []string `json:"departments" validate:"dive,department"`
}

// RecordDecisionCommand carries the raw input of one department decision
type RecordDecisionCommand struct {
	AggregateID int64
	Department  string
	Action      string
	Comment     string
	Actor       entity.Actor
}

// ApprovalService manages workflow aggregates and their department decisions
type ApprovalService interface {
	CreateAggregate(ctx context.Context, cmd CreateAggregateCommand) (*entity.WorkflowAggregate, error)
	GetAggregate(ctx context.Context, id int64) (*entity.WorkflowAggregate, error)
	GetAggregateByCode(ctx context.Context, code string) (*entity.WorkflowAggregate, error)
	ListAggregates(ctx context.Context, filter entity.AggregateFilter) ([]*entity.WorkflowAggregate, error)

	// RecordDecision appends a department decision, recomputes the aggregate
	// status and persists both atomically. Notifications are emitted after commit.
	RecordDecision(ctx context.Context, cmd RecordDecisionCommand) (*entity.WorkflowAggregate, error)
}

type approvalServiceImpl struct {
	aggRepo   port.AggregateRepository
	sequences SequenceGenerator
	policy    AuthorizationPolicy
	txManager port.TransactionManager
	retry     *utils.RetryStrategy
	opts      options
	logger    Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	cfg ApprovalConfig,
	aggRepo port.AggregateRepository,
	sequences SequenceGenerator,
	txManager port.TransactionManager,
	logger Logger,
	opts ...Option,
) ApprovalService {
	retry := utils.NewRetryStrategy()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseBackoff > 0 {
		retry.BaseBackoff = cfg.BaseBackoff
	}
	if cfg.MaxBackoff > 0 {
		retry.MaxBackoff = cfg.MaxBackoff
	}

	return &approvalServiceImpl{
		aggRepo:   aggRepo,
		sequences: sequences,
		policy:    NewAuthorizationPolicy(cfg.ElevatedRoles),
		txManager: txManager,
		retry:     retry,
		opts:      newOptions(opts),
		logger:    logger,
	}
}

// CreateAggregate creates a new aggregate numbered from its kind's sequence family
func (s *approvalServiceImpl) CreateAggregate(ctx context.Context, cmd CreateAggregateCommand) (*entity.WorkflowAggregate, error) {
	kind, err := entity.ParseKind(cmd.Kind)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", entity.ErrValidation)
	}
	owner := strings.TrimSpace(cmd.OwnerID)
	if owner == "" {
		return nil, fmt.Errorf("%w: owner is required", entity.ErrValidation)
	}
	departments, err := entity.ParseDepartments(cmd.Departments)
	if err != nil {
		return nil, err
	}

	code, err := s.sequences.NextIdentifier(ctx, kind.SequenceFamily())
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	agg := &entity.WorkflowAggregate{
		Code:        code,
		Kind:        kind,
		Title:       title,
		OwnerID:     owner,
		Departments: departments,
		ApprovalLog: entity.ApprovalLog{},
		Status:      workflow.ResolveStatus(departments, entity.ApprovalLog{}),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// No approving departments means nothing can block release
	if agg.Status == entity.StatusApproved {
		agg.Released = true
		agg.ReleasedAt = &now
	}

	if err := s.aggRepo.Create(ctx, agg); err != nil {
		s.logger.Error("Failed to create aggregate", "code", code, "error", err)
		return nil, fmt.Errorf("create aggregate: %w", err)
	}

	s.opts.publish(ctx, event.NewEvent(event.TypeAggregateCreated, agg.ID, agg.Code, map[string]interface{}{
		event.KeyStatus: string(agg.Status),
	}))

	s.logger.Info("Aggregate created", "id", agg.ID, "code", agg.Code, "kind", agg.Kind, "departments", len(departments))
	return agg, nil
}

// GetAggregate retrieves an aggregate by ID
func (s *approvalServiceImpl) GetAggregate(ctx context.Context, id int64) (*entity.WorkflowAggregate, error) {
	agg, err := s.aggRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get aggregate", "error", err, "id", id)
		return nil, err
	}
	if agg == nil {
		return nil, fmt.Errorf("%w: aggregate %d", entity.ErrNotFound, id)
	}
	return agg, nil
}

// GetAggregateByCode retrieves an aggregate by its generated identifier
func (s *approvalServiceImpl) GetAggregateByCode(ctx context.Context, code string) (*entity.WorkflowAggregate, error) {
	agg, err := s.aggRepo.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		s.logger.Error("Failed to get aggregate by code", "error", err, "code", code)
		return nil, err
	}
	if agg == nil {
		return nil, fmt.Errorf("%w: aggregate %s", entity.ErrNotFound, code)
	}
	return agg, nil
}

// ListAggregates retrieves a page of aggregates
func (s *approvalServiceImpl) ListAggregates(ctx context.Context, filter entity.AggregateFilter) ([]*entity.WorkflowAggregate, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrValidation, filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	aggs, err := s.aggRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list aggregates", "error", err, "limit", filter.Limit, "offset", filter.Offset)
		return nil, err
	}
	return aggs, nil
}

// RecordDecision records one department decision
func (s *approvalServiceImpl) RecordDecision(ctx context.Context, cmd RecordDecisionCommand) (*entity.WorkflowAggregate, error) {
	decision, err := entity.ParseDecision(cmd.Action)
	if err != nil {
		return nil, err
	}
	dept, err := entity.ParseDepartment(cmd.Department)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanDecide(cmd.Actor, dept); err != nil {
		s.logger.Info("Decision refused", "aggregate_id", cmd.AggregateID, "department", dept,
			"actor", cmd.Actor.UserID, "actor_department", cmd.Actor.Department, "role", cmd.Actor.Role)
		return nil, err
	}

	comment := strings.TrimSpace(cmd.Comment)

	var (
		result   *entity.WorkflowAggregate
		previous entity.AggregateStatus
	)

	attempts, err := s.retry.Do(ctx, isRetryableDecision, func(attempt int) error {
		return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			agg, err := s.aggRepo.GetByID(txCtx, cmd.AggregateID)
			if err != nil {
				return fmt.Errorf("load aggregate: %w", err)
			}
			if agg == nil {
				return fmt.Errorf("%w: aggregate %d", entity.ErrNotFound, cmd.AggregateID)
			}
			if agg.Released {
				return fmt.Errorf("%w: aggregate %s", entity.ErrAlreadyFinalized, agg.Code)
			}
			if !agg.RequiresDepartment(dept) {
				return fmt.Errorf("%w: department %s is not required for %s", entity.ErrValidation, dept, agg.Code)
			}

			updated, err := s.applyDecision(txCtx, agg, dept, decision, cmd.Actor.UserID, comment)
			if err != nil {
				return err
			}

			if err := s.aggRepo.UpdateDecision(txCtx, updated, agg.Version); err != nil {
				if errors.Is(err, entity.ErrVersionConflict) {
					s.logger.Info("Decision write lost a version race, retrying",
						"aggregate_id", agg.ID, "version", agg.Version, "attempt", attempt)
				}
				return err
			}

			result = updated
			previous = agg.Status
			return nil
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrVersionConflict):
			s.opts.metrics.DecisionConflict()
			s.logger.Error("Decision abandoned after repeated conflicts",
				"aggregate_id", cmd.AggregateID, "department", dept, "attempts", attempts)
			return nil, fmt.Errorf("%w: aggregate %d", entity.ErrConcurrentModification, cmd.AggregateID)
		case errors.Is(err, entity.ErrValidation), errors.Is(err, entity.ErrNotFound), errors.Is(err, entity.ErrAlreadyFinalized):
			return nil, err
		default:
			s.logger.Error("Failed to record decision", "aggregate_id", cmd.AggregateID, "department", dept, "error", err)
			return nil, err
		}
	}

	s.opts.metrics.DecisionRecorded(string(result.Kind), string(decision), string(result.Status))
	s.logger.Info("Decision recorded",
		"aggregate_id", result.ID,
		"code", result.Code,
		"department", dept,
		"decision", decision,
		"actor", cmd.Actor.UserID,
		"previous_status", previous,
		"status", result.Status,
		"released", result.Released,
		"attempts", attempts,
	)

	s.publishDecision(ctx, result, previous, dept, decision, cmd.Actor.UserID, comment)
	return result, nil
}

// applyDecision returns a copy of agg with the decision appended and the status re-derived
func (s *approvalServiceImpl) applyDecision(
	ctx context.Context,
	agg *entity.WorkflowAggregate,
	dept entity.Department,
	decision entity.Decision,
	actor, comment string,
) (*entity.WorkflowAggregate, error) {
	now := s.opts.now()

	log := agg.ApprovalLog.Clone()
	log.Append(dept, entity.DecisionRecord{
		Status:    decision,
		Timestamp: now,
		Actor:     actor,
		Comment:   comment,
	})

	machine, err := workflow.NewApprovalMachine(agg.Status)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", agg.Code, err)
	}
	trigger := workflow.Resolve(agg.Departments, log)
	if !machine.CanFire(trigger) {
		// Only APPROVED refuses every resolution, and APPROVED is always released
		return nil, fmt.Errorf("aggregate %s is %s: %w", agg.Code, agg.Status, entity.ErrAlreadyFinalized)
	}
	if err := machine.Fire(trigger); err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", agg.Code, err)
	}

	updated := *agg
	updated.ApprovalLog = log
	updated.Status = machine.State().Status()
	updated.UpdatedAt = now
	if updated.Status == entity.StatusApproved {
		updated.Released = true
		updated.ReleasedAt = &now
	}

	return &updated, nil
}

func (s *approvalServiceImpl) publishDecision(
	ctx context.Context,
	agg *entity.WorkflowAggregate,
	previous entity.AggregateStatus,
	dept entity.Department,
	decision entity.Decision,
	actor, comment string,
) {
	recorded := event.NewEvent(event.TypeDecisionRecorded, agg.ID, agg.Code, map[string]interface{}{
		event.KeyDepartment:     string(dept),
		event.KeyDecision:       string(decision),
		event.KeyActor:          actor,
		event.KeyComment:        comment,
		event.KeyStatus:         string(agg.Status),
		event.KeyPreviousStatus: string(previous),
	})
	s.opts.publish(ctx, recorded)

	if agg.Status == previous {
		return
	}
	switch agg.Status {
	case entity.StatusApproved:
		s.opts.publish(ctx, recorded.Caused(event.TypeAggregateReleased, map[string]interface{}{
			event.KeyStatus: string(agg.Status),
		}))
	case entity.StatusRejected:
		s.opts.publish(ctx, recorded.Caused(event.TypeAggregateRejected, map[string]interface{}{
			event.KeyStatus:     string(agg.Status),
			event.KeyDepartment: string(dept),
		}))
	}
}

func isRetryableDecision(err error) bool {
	return errors.Is(err, entity.ErrVersionConflict) || errors.Is(err, entity.ErrStorageBusy)
}
