package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BaseCurrency anchors every stored rate: Rate is units of Currency per 1 EUR
const BaseCurrency = "EUR"

// ExchangeRate is one daily observation loaded by the rate ingestion job.
// MarginID is maintained by the margin service and always points at the margin effective on Date.
type ExchangeRate struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Date      time.Time       `gorm:"type:date;not null;uniqueIndex:idx_exchange_rates_date_currency;index" json:"date"`
	Currency  string          `gorm:"type:varchar(3);not null;uniqueIndex:idx_exchange_rates_date_currency" json:"currency"`
	Rate      decimal.Decimal `gorm:"type:decimal(18,6);not null" json:"rate"`
	MarginID  *uuid.UUID      `gorm:"type:uuid;index" json:"margin_id"`
	Margin    *Margin         `gorm:"foreignKey:MarginID;constraint:OnDelete:SET NULL" json:"margin,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
