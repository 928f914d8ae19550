package models

import "time"

// Payment statuses mirror the YooKassa payment object lifecycle.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentCanceled  = "canceled"
)

// Payment is a fish top-up created through the payment bot. One row per
// YooKassa payment; the balance is credited exactly once, when the local
// status first transitions to succeeded.
type Payment struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	YookassaID  string    `json:"yookassaId"`
	AmountRub   int       `json:"amountRub"`
	FishAmount  int       `json:"fishAmount"`
	Status      string    `json:"status"`
	Method      string    `json:"method"` // e.g. "bank_card", "sbp"
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
