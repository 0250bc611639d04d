package models

import (
	"time"

	"github.com/google/uuid"
)

// Task deletion reasons.
const (
	TaskDeletionCancelled = "cancelled"
	TaskDeletionModerated = "moderated"
)

type Task struct {
	ID              uuid.UUID  `json:"id"`
	BuyerEmail      string     `json:"buyer_email"`
	BuyerName       string     `json:"buyer_name"`
	Title           string     `json:"task_title"`
	Detail          string     `json:"task_detail"`
	SubmissionInfo  string     `json:"submission_info"`
	ImageURL        string     `json:"task_image_url"`
	RequiredWorkers int        `json:"required_workers"`
	PayableAmount   int64      `json:"payable_amount"`
	CompletionDate  *time.Time `json:"completion_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"-"`
	DeletionReason  string     `json:"-"`
}

// Escrow is the number of coins still held for the task's open slots.
func (t *Task) Escrow() int64 {
	return int64(t.RequiredWorkers) * t.PayableAmount
}

// Deleted reports whether the task has been removed by its buyer or an admin.
func (t *Task) Deleted() bool {
	return t.DeletedAt != nil
}

// TaskUpdate carries the descriptive fields a buyer may edit; nil means unchanged.
type TaskUpdate struct {
	Title          *string `json:"task_title"`
	Detail         *string `json:"task_detail"`
	SubmissionInfo *string `json:"submission_info"`
}
