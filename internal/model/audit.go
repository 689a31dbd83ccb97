package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateMargin = "CREATE_MARGIN"
	ActionUpdateMargin = "UPDATE_MARGIN"
	ActionCloseMargin  = "CLOSE_MARGIN"
	ActionShiftMargin  = "SHIFT_MARGIN"
	ActionDeleteMargin = "DELETE_MARGIN"
	ActionRelinkRates  = "RELINK_RATES"
)

// AuditLog tracks Who, What, and When for margin timeline changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable for automated jobs
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Margin id
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable window
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
