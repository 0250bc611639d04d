package models

import (
	"time"

	"github.com/google/uuid"
)

// Submission status enums.
const (
	SubmissionStatusPending  = "pending"
	SubmissionStatusApproved = "approved"
	SubmissionStatusRejected = "rejected"
)

type Submission struct {
	ID            uuid.UUID  `json:"id"`
	TaskID        uuid.UUID  `json:"task_id"`
	TaskTitle     string     `json:"task_title"`
	PayableAmount int64      `json:"payable_amount"`
	WorkerEmail   string     `json:"worker_email"`
	WorkerName    string     `json:"worker_name"`
	BuyerEmail    string     `json:"buyer_email"`
	BuyerName     string     `json:"buyer_name"`
	Details       string     `json:"submission_details"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	JudgedAt      *time.Time `json:"judged_at,omitempty"`
}

// SubmissionFilter narrows submission listings; empty fields match everything.
type SubmissionFilter struct {
	WorkerEmail string
	BuyerEmail  string
	Status      string
}

// SubmissionPage is one page of a worker's submissions.
type SubmissionPage struct {
	Submissions []*Submission `json:"submissions"`
	Total       int           `json:"total"`
	Page        int           `json:"page"`
	Limit       int           `json:"limit"`
	TotalPages  int           `json:"totalPages"`
}
