package domain

import (
	"time"

	"github.com/google/uuid"
)

// BillingPeriod период тарификации уровня
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// Tier уровень подписки, определяемый автором. Для биллингового ядра
// таблица тарифов доступна только на чтение: ею владеет инструментарий
// управления авторами.
type Tier struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	CreatorID       uuid.UUID     `db:"creator_id" json:"creator_id"`
	Price           int64         `db:"price" json:"price"` // В минимальных единицах валюты
	BillingPeriod   BillingPeriod `db:"billing_period" json:"billing_period"`
	ExternalPriceID string        `db:"external_price_id" json:"external_price_id,omitempty"`
	IsActive        bool          `db:"is_active" json:"is_active"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// PeriodEnd вычисляет конец расчетного периода, начинающегося в start
func (t *Tier) PeriodEnd(start time.Time) time.Time {
	if t.BillingPeriod == BillingPeriodYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
