package domain

import "time"

// FineTuningElement is one labeled question/answer sample collected for
// embedding fine-tuning. Samples are plain training data and carry no
// vectors of their own.
type FineTuningElement struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Scope      string    `json:"scope"`
	IsPositive bool      `json:"isPositive"`
	DateTime   time.Time `json:"dateTime"`
	Reference  string    `json:"reference,omitempty"`
	Source     string    `json:"source,omitempty"`
	BusinessID string    `json:"businessId,omitempty"`
}
