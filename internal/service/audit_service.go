package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fxdesk/internal/model"
	"fxdesk/internal/repository"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entityId"`
	EntityName string `json:"entityName"`
	Details    string `json:"details"`
	CreatedAt  string `json:"createdAt"`
}

// AuditQuery narrows the trail to one margin and/or one action; empty fields match everything.
type AuditQuery struct {
	MarginID string
	Action   string
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, query AuditQuery, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

var auditActions = map[string]bool{
	model.ActionCreateMargin: true,
	model.ActionUpdateMargin: true,
	model.ActionCloseMargin:  true,
	model.ActionShiftMargin:  true,
	model.ActionDeleteMargin: true,
	model.ActionRelinkRates:  true,
}

// GetAuditLogs returns the margin change history page by page, newest first
func (s *auditService) GetAuditLogs(ctx context.Context, query AuditQuery, page, limit int) ([]AuditLogResponse, int64, error) {
	var filter repository.AuditFilter
	if query.MarginID != "" {
		id, err := parseMarginID(query.MarginID)
		if err != nil {
			return nil, 0, err
		}
		filter.EntityID = id.String()
	}
	if query.Action != "" {
		action := strings.ToUpper(query.Action)
		if !auditActions[action] {
			return nil, 0, badRequest(CodeInvalidAction, "unknown audit action "+query.Action, nil)
		}
		filter.Action = action
	}

	logs, total, err := s.auditRepo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		})
	}

	return res, total, nil
}
