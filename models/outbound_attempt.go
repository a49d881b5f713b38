package models

import "time"

// OutboundAttempt records one delivery attempt made by the outbound queue
// for a scheduled job, logging its outcome and any error.
type OutboundAttempt struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	Attempt      int       `json:"attempt"`
	Status       string    `json:"status"` // 'delivered', 'failed' or 'retrying'
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
