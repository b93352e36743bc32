package service

import (
	"context"
	"fmt"

	"github.com/garyjia/uxone/internal/application/port"
)

// ExportResult is a rendered approval log document
type ExportResult struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders approval logs for download
type ExportService interface {
	ExportApprovalLog(ctx context.Context, aggregateID int64) (*ExportResult, error)
}

type exportServiceImpl struct {
	approvals ApprovalService
	writer    port.ApprovalLogWriter
	logger    Logger
}

// NewExportService creates a new ExportService
func NewExportService(approvals ApprovalService, writer port.ApprovalLogWriter, logger Logger) ExportService {
	return &exportServiceImpl{
		approvals: approvals,
		writer:    writer,
		logger:    logger,
	}
}

// ExportApprovalLog renders the aggregate's approval log
func (s *exportServiceImpl) ExportApprovalLog(ctx context.Context, aggregateID int64) (*ExportResult, error) {
	agg, err := s.approvals.GetAggregate(ctx, aggregateID)
	if err != nil {
		return nil, err
	}

	content, err := s.writer.Write(agg)
	if err != nil {
		s.logger.Error("Failed to render approval log", "aggregate_id", aggregateID, "error", err)
		return nil, fmt.Errorf("render approval log: %w", err)
	}

	s.logger.Info("Approval log exported", "aggregate_id", aggregateID, "code", agg.Code, "bytes", len(content))
	return &ExportResult{
		Filename:    fmt.Sprintf("%s-approval-log%s", agg.Code, s.writer.Extension()),
		ContentType: s.writer.ContentType(),
		Content:     content,
	}, nil
}
