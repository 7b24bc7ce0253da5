package models

import "time"

// PaymentStatus - закрытый набор статусов оплаты регистрации.
// Словарь платежного провайдера маппится в него на границе адаптера.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Active сообщает, занимает ли регистрация место в турнире.
func (s PaymentStatus) Active() bool {
	return s == PaymentPending || s == PaymentPaid
}

// ActivePaymentStatuses - статусы, учитываемые при подсчете заполненности турнира.
var ActivePaymentStatuses = []PaymentStatus{PaymentPending, PaymentPaid}

type Registration struct {
	ID             int           `json:"id" db:"id"`
	TournamentID   int           `json:"tournament_id" db:"tournament_id"`
	UserID         int           `json:"user_id" db:"user_id"`
	PaymentStatus  PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentRef     *string       `json:"payment_ref,omitempty" db:"payment_ref"`
	ProviderStatus *string       `json:"provider_status,omitempty" db:"provider_status"`
	Decklist       *string       `json:"decklist,omitempty" db:"decklist"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`

	User       *User       `json:"user,omitempty" db:"-"`
	Tournament *Tournament `json:"tournament,omitempty" db:"-"`
}
