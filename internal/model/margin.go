package model

import (
	"time"

	"fxdesk/internal/timeline"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Margin is a markup applied on top of raw exchange rates during its validity window
type Margin struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Value     decimal.Decimal `gorm:"type:decimal(10,6);not null" json:"value"`         // fraction, e.g. 0.02 = 2%
	StartDate time.Time       `gorm:"type:date;not null;uniqueIndex" json:"start_date"` // first effective day
	EndDate   *time.Time      `gorm:"type:date;index" json:"end_date"`                  // last effective day, nullable = open ended
	OwnerID   *uuid.UUID      `gorm:"type:uuid;index" json:"owner_id"`                  // last user to write the row
	Owner     *User           `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL" json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Window converts the nullable end date into a timeline window
func (m Margin) Window() timeline.Window {
	return timeline.FromNullable(m.StartDate, m.EndDate)
}

// Interval returns the timeline view of the margin
func (m Margin) Interval() timeline.Interval {
	return timeline.Interval{ID: m.ID, Value: m.Value, Window: m.Window()}
}

// SetWindow writes w back into the storage columns
func (m *Margin) SetWindow(w timeline.Window) {
	m.StartDate = w.Start()
	m.EndDate = w.EndPtr()
}

// OwnerDisplayName falls back to "System" for rows written without an authenticated user
func (m Margin) OwnerDisplayName() string {
	if m.Owner == nil || m.Owner.Username == "" {
		return "System"
	}
	return m.Owner.Username
}
