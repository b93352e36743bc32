package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/entity"
	"github.com/garyjia/uxone/internal/domain/event"
)

// NotificationConfig configures notification delivery
type NotificationConfig struct {
	// MaxAttempts caps deliveries per notification, including redelivery
	MaxAttempts int
	// BaseURL is prepended to links in delivered messages; stored links stay relative
	BaseURL string
}

// DecisionNotice describes a committed decision for notification purposes
type DecisionNotice struct {
	Department entity.Department
	Decision   entity.Decision
	Actor      string
	Comment    string
	Status     entity.AggregateStatus
}

// NotificationService builds and delivers best-effort decision notifications
type NotificationService interface {
	// HandleDecisionRecorded is the dispatcher handler for decision.recorded events
	HandleDecisionRecorded(ctx context.Context, evt *event.Event) error

	// BuildDecisionNotifications returns the notifications a decision produces without persisting them
	BuildDecisionNotifications(ctx context.Context, agg *entity.WorkflowAggregate, notice DecisionNotice) ([]*entity.Notification, error)

	// NotifyDecision builds, persists and delivers the notifications for a decision.
	// Delivery failures are recorded on the notification and never returned.
	NotifyDecision(ctx context.Context, agg *entity.WorkflowAggregate, notice DecisionNotice) ([]*entity.Notification, error)

	// RedeliverFailed retries failed notifications under the attempt cap and returns how many were sent
	RedeliverFailed(ctx context.Context, limit int) (int, error)

	ListForRecipient(ctx context.Context, userID string, limit, offset int) ([]*entity.Notification, error)
}

type notificationServiceImpl struct {
	cfg              NotificationConfig
	aggRepo          port.AggregateRepository
	notificationRepo port.NotificationRepository
	userRepo         port.UserRepository
	messageSender    port.LarkMessageSender
	opts             options
	logger           Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	cfg NotificationConfig,
	aggRepo port.AggregateRepository,
	notificationRepo port.NotificationRepository,
	userRepo port.UserRepository,
	messageSender port.LarkMessageSender,
	logger Logger,
	opts ...Option,
) NotificationService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &notificationServiceImpl{
		cfg:              cfg,
		aggRepo:          aggRepo,
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		messageSender:    messageSender,
		opts:             newOptions(opts),
		logger:           logger,
	}
}

// HandleDecisionRecorded reloads the aggregate and notifies the affected users
func (s *notificationServiceImpl) HandleDecisionRecorded(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return fmt.Errorf("event cannot be nil")
	}

	agg, err := s.aggRepo.GetByID(ctx, evt.AggregateID)
	if err != nil {
		return fmt.Errorf("load aggregate %d: %w", evt.AggregateID, err)
	}
	if agg == nil {
		return fmt.Errorf("aggregate %d not found", evt.AggregateID)
	}

	notice := DecisionNotice{
		Department: entity.Department(evt.GetPayloadString(event.KeyDepartment)),
		Decision:   entity.Decision(evt.GetPayloadString(event.KeyDecision)),
		Actor:      evt.GetPayloadString(event.KeyActor),
		Comment:    evt.GetPayloadString(event.KeyComment),
		Status:     entity.AggregateStatus(evt.GetPayloadString(event.KeyStatus)),
	}

	_, err = s.NotifyDecision(ctx, agg, notice)
	return err
}

// BuildDecisionNotifications returns the owner notification plus, for commented
// decisions, one per head of every other required department.
func (s *notificationServiceImpl) BuildDecisionNotifications(ctx context.Context, agg *entity.WorkflowAggregate, notice DecisionNotice) ([]*entity.Notification, error) {
	link := agg.Link()
	subject := fmt.Sprintf("%s %s", kindLabel(agg.Kind), agg.Code)

	ownerMsg := fmt.Sprintf("%s %s %s. Current status: %s.",
		strings.ToUpper(string(notice.Department)), decisionVerb(notice.Decision), subject, notice.Status)
	if notice.Comment != "" {
		ownerMsg += fmt.Sprintf(" Comment: %q", notice.Comment)
	}

	out := []*entity.Notification{
		s.newNotification(agg, agg.OwnerID, ownerTitle(subject, notice.Status), ownerMsg, statusType(notice.Status), link),
	}

	if notice.Comment == "" {
		return out, nil
	}

	others := make([]entity.Department, 0, len(agg.Departments))
	for _, d := range agg.Departments {
		if d != notice.Department {
			others = append(others, d)
		}
	}
	if len(others) == 0 {
		return out, nil
	}

	heads, err := s.userRepo.ListDepartmentHeads(ctx, others)
	if err != nil {
		return out, fmt.Errorf("list department heads: %w", err)
	}

	seen := map[string]bool{notice.Actor: true, agg.OwnerID: true}
	for _, head := range heads {
		if head == nil || seen[head.UserID] {
			continue
		}
		seen[head.UserID] = true

		msg := fmt.Sprintf("%s commented on %s: %q", strings.ToUpper(string(notice.Department)), subject, notice.Comment)
		out = append(out, s.newNotification(agg, head.UserID, "New comment on "+subject, msg, entity.NotificationTypeInfo, link))
	}

	return out, nil
}

// NotifyDecision builds, persists and delivers the decision notifications
func (s *notificationServiceImpl) NotifyDecision(ctx context.Context, agg *entity.WorkflowAggregate, notice DecisionNotice) ([]*entity.Notification, error) {
	notifications, err := s.BuildDecisionNotifications(ctx, agg, notice)
	if err != nil {
		// Department heads could not be resolved; the owner still gets notified
		s.logger.Error("Failed to build all notifications", "aggregate_id", agg.ID, "error", err)
	}

	for _, n := range notifications {
		if err := s.notificationRepo.Create(ctx, n); err != nil {
			s.logger.Error("Failed to persist notification",
				"aggregate_id", agg.ID, "recipient", n.RecipientUserID, "error", err)
			continue
		}
		s.deliver(ctx, n)
	}

	s.logger.Info("Decision notifications processed", "aggregate_id", agg.ID, "count", len(notifications))
	return notifications, nil
}

// RedeliverFailed resends failed notifications
func (s *notificationServiceImpl) RedeliverFailed(ctx context.Context, limit int) (int, error) {
	failed, err := s.notificationRepo.ListFailed(ctx, s.cfg.MaxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("list failed notifications: %w", err)
	}

	sent := 0
	for _, n := range failed {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if s.deliver(ctx, n) {
			sent++
		}
	}

	if len(failed) > 0 {
		s.logger.Info("Redelivery pass finished", "candidates", len(failed), "sent", sent)
	}
	return sent, nil
}

// ListForRecipient lists a user's notifications, newest first
func (s *notificationServiceImpl) ListForRecipient(ctx context.Context, userID string, limit, offset int) ([]*entity.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: recipient is required", entity.ErrValidation)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.notificationRepo.ListByRecipient(ctx, userID, limit, offset)
}

// deliver sends one persisted notification and records the outcome
func (s *notificationServiceImpl) deliver(ctx context.Context, n *entity.Notification) bool {
	fail := func(reason string) bool {
		s.opts.metrics.NotificationDelivered(entity.NotificationStatusFailed)
		if err := s.notificationRepo.MarkFailed(ctx, n.ID, reason); err != nil {
			s.logger.Error("Failed to mark notification failed", "notification_id", n.ID, "error", err)
		}
		s.logger.Error("Notification delivery failed",
			"notification_id", n.ID, "recipient", n.RecipientUserID, "reason", reason)
		return false
	}

	user, err := s.userRepo.GetByID(ctx, n.RecipientUserID)
	if err != nil {
		return fail(fmt.Sprintf("lookup recipient: %v", err))
	}
	if user == nil {
		return fail("recipient not found")
	}
	if user.LarkOpenID == "" {
		return fail("recipient has no lark open id")
	}

	if err := s.messageSender.SendMessage(ctx, user.LarkOpenID, s.render(n)); err != nil {
		return fail(err.Error())
	}

	if err := s.notificationRepo.MarkSent(ctx, n.ID); err != nil {
		s.logger.Error("Failed to mark notification sent", "notification_id", n.ID, "error", err)
	}
	s.opts.metrics.NotificationDelivered(entity.NotificationStatusSent)
	return true
}

func (s *notificationServiceImpl) render(n *entity.Notification) string {
	return fmt.Sprintf("%s\n%s\n%s%s", n.Title, n.Message, strings.TrimSuffix(s.cfg.BaseURL, "/"), n.Link)
}

func (s *notificationServiceImpl) newNotification(agg *entity.WorkflowAggregate, recipient, title, message string, typ entity.NotificationType, link string) *entity.Notification {
	now := s.opts.now()
	return &entity.Notification{
		UUID:            uuid.NewString(),
		AggregateID:     agg.ID,
		RecipientUserID: recipient,
		Title:           title,
		Message:         message,
		Type:            typ,
		Link:            link,
		Status:          entity.NotificationStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func statusType(status entity.AggregateStatus) entity.NotificationType {
	switch status {
	case entity.StatusApproved:
		return entity.NotificationTypeSuccess
	case entity.StatusRejected:
		return entity.NotificationTypeWarning
	default:
		return entity.NotificationTypeInfo
	}
}

func ownerTitle(subject string, status entity.AggregateStatus) string {
	switch status {
	case entity.StatusApproved:
		return subject + " approved"
	case entity.StatusRejected:
		return subject + " rejected"
	default:
		return subject + " updated"
	}
}

func decisionVerb(d entity.Decision) string {
	if d == entity.DecisionRejected {
		return "rejected"
	}
	return "approved"
}

func kindLabel(k entity.AggregateKind) string {
	switch k {
	case entity.KindProject:
		return "Project"
	case entity.KindDemand:
		return "Demand"
	}
	return "Aggregate"
}
