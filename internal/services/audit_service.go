package services

import (
	"encoding/json"

	"gorm.io/gorm"

	apperrors "meikon/internal/errors"
	"meikon/internal/logger"
	"meikon/internal/models"
	"meikon/internal/pagination"
)

// auditService writes and reads the audit trail.
type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

// NewAuditReader creates a new AuditReader.
func NewAuditReader(db *gorm.DB) AuditReader {
	return &auditService{db: db}
}

// Log records an audit event. Failures are logged and swallowed so the
// audited write is never rolled back by its audit entry.
func (s *auditService) Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{}) {
	entry := &models.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Changes:      encodeChanges(action, changes),
	}
	if err := s.db.Create(entry).Error; err != nil {
		logger.Get().Errorw("failed to write audit entry",
			"error", err,
			"user_id", userID,
			"action", action,
			"resource", resourceType+"/"+resourceID,
		)
	}
}

func encodeChanges(action string, changes map[string]interface{}) string {
	if len(changes) == 0 {
		return ""
	}
	data, err := json.Marshal(changes)
	if err != nil {
		logger.Get().Warnw("audit changes are not serializable", "action", action, "error", err)
		return "{}"
	}
	return string(data)
}

// ListAuditLogs pages through audit entries, newest first.
func (s *auditService) ListAuditLogs(filter AuditFilter, page pagination.PageRequest) (*pagination.PageResponse[models.AuditLog], error) {
	page.Normalize()

	base := s.db.Model(&models.AuditLog{})
	if filter.UserID != "" {
		base = base.Scopes(models.OwnedBy(filter.UserID))
	}
	if filter.ResourceType != "" {
		base = base.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		base = base.Where("resource_id = ?", filter.ResourceID)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var entries []models.AuditLog
	if err := base.Scopes(pagination.Paginate(page)).Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(entries, page, totalItems)
	return &result, nil
}
