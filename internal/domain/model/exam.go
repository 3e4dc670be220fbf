package model

import "time"

// ExamApplication tracks a worker's one-time exam fee. Only the payment
// lifecycle matters here; scheduling lives elsewhere.
type ExamApplication struct {
	ID               string
	ProfileID        string
	ExamID           string
	PaymentCompleted bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
