package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/application/service"
	"github.com/garyjia/uxone/internal/domain/entity"
)

const helpText = `Commands:
approve <code> [as <department>] [comment]
reject <code> [as <department>] [comment]
status <code>`

// UserDirectory resolves Lark senders to users
type UserDirectory interface {
	GetByLarkOpenID(ctx context.Context, openID string) (*entity.User, error)
}

// ChatCommand is a parsed chat message
type ChatCommand struct {
	Verb       string
	Code       string
	Department string
	Comment    string
}

// ParseChatCommand parses "<verb> <code> [as <department>] [comment]".
// Mention placeholders inserted by Lark in group chats are ignored.
func ParseChatCommand(text string) (ChatCommand, error) {
	fields := make([]string, 0)
	for _, f := range strings.Fields(text) {
		if strings.HasPrefix(f, "@_user") {
			continue
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return ChatCommand{}, fmt.Errorf("%w: empty command", entity.ErrValidation)
	}

	cmd := ChatCommand{Verb: strings.ToLower(fields[0])}
	if cmd.Verb == "help" {
		return cmd, nil
	}
	if len(fields) < 2 {
		return ChatCommand{}, fmt.Errorf("%w: %s needs an identifier", entity.ErrValidation, cmd.Verb)
	}
	cmd.Code = strings.ToUpper(fields[1])

	rest := fields[2:]
	if len(rest) >= 2 && strings.EqualFold(rest[0], "as") {
		cmd.Department = rest[1]
		rest = rest[2:]
	}
	cmd.Comment = strings.Join(rest, " ")
	return cmd, nil
}

// CommandHandler executes chat commands on behalf of directory users
type CommandHandler struct {
	approvals service.ApprovalService
	users     UserDirectory
	replier   port.LarkMessageSender
	logger    *zap.Logger
}

// NewCommandHandler creates a new chat command handler
func NewCommandHandler(approvals service.ApprovalService, users UserDirectory, replier port.LarkMessageSender, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		approvals: approvals,
		users:     users,
		replier:   replier,
		logger:    logger,
	}
}

// Handle runs the command in text for the sender and replies with the outcome
func (h *CommandHandler) Handle(ctx context.Context, openID, text string) error {
	reply := h.execute(ctx, openID, text)
	if err := h.replier.SendMessage(ctx, openID, reply); err != nil {
		h.logger.Error("Failed to send chat reply", zap.String("open_id", openID), zap.Error(err))
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (h *CommandHandler) execute(ctx context.Context, openID, text string) string {
	cmd, err := ParseChatCommand(text)
	if err != nil {
		return "Unrecognized command.\n" + helpText
	}

	switch cmd.Verb {
	case "help":
		return helpText
	case "status":
		agg, err := h.approvals.GetAggregateByCode(ctx, cmd.Code)
		if err != nil {
			return describeError(err)
		}
		return formatStatus(agg)
	}

	user, err := h.users.GetByLarkOpenID(ctx, openID)
	if err != nil {
		h.logger.Error("Failed to resolve chat sender", zap.String("open_id", openID), zap.Error(err))
		return "Could not look up your account, please try again later."
	}
	if user == nil {
		return "Your Lark account is not linked to a UXOne user."
	}

	department := cmd.Department
	if department == "" {
		department = string(user.Department)
	}
	if department == "" {
		return "Please name the department: approve <code> as <department>"
	}

	agg, err := h.approvals.GetAggregateByCode(ctx, cmd.Code)
	if err != nil {
		return describeError(err)
	}

	updated, err := h.approvals.RecordDecision(ctx, service.RecordDecisionCommand{
		AggregateID: agg.ID,
		Department:  department,
		Action:      cmd.Verb,
		Comment:     cmd.Comment,
		Actor: entity.Actor{
			UserID:     user.UserID,
			Department: user.Department,
			Role:       user.Role,
		},
	})
	if err != nil {
		h.logger.Info("Chat decision refused",
			zap.String("user_id", user.UserID),
			zap.String("code", cmd.Code),
			zap.Error(err))
		return describeError(err)
	}

	h.logger.Info("Chat decision recorded",
		zap.String("user_id", user.UserID),
		zap.String("code", updated.Code),
		zap.String("status", string(updated.Status)))
	return fmt.Sprintf("Recorded. %s", formatStatus(updated))
}

func formatStatus(agg *entity.WorkflowAggregate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q is %s", agg.Code, agg.Title, agg.Status)
	if agg.Released {
		b.WriteString(" (released)")
	}
	for _, ds := range agg.DepartmentStatuses() {
		fmt.Fprintf(&b, "\n- %s: %s", ds.Department, ds.Status)
		if ds.DecidedBy != "" {
			fmt.Fprintf(&b, " by %s", ds.DecidedBy)
		}
	}
	return b.String()
}

func describeError(err error) string {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return "No project or demand with that identifier."
	case errors.Is(err, entity.ErrForbidden):
		return "You cannot decide for that department."
	case errors.Is(err, entity.ErrAlreadyFinalized):
		return "This item is already released and cannot be changed."
	case errors.Is(err, entity.ErrConcurrentModification):
		return "Someone else updated this item at the same time, please resend."
	case errors.Is(err, entity.ErrValidation):
		return "Invalid request: " + err.Error()
	default:
		return "Something went wrong, please try again later."
	}
}
