package model

import "time"

// DecisionKind is the reviewer's verdict on a record at a given stage.
type DecisionKind string

const (
	DecisionApproved DecisionKind = "approved"
	DecisionRejected DecisionKind = "rejected"
	DecisionSkipped  DecisionKind = "skipped"
	DecisionSelected DecisionKind = "selected"
)

// Valid reports whether d is a known decision kind.
func (d DecisionKind) Valid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionSkipped, DecisionSelected:
		return true
	}
	return false
}

// Approves reports whether d lets a record through to the next stage.
func (d DecisionKind) Approves() bool {
	return d == DecisionApproved || d == DecisionSelected
}

// Decision is an append-only reviewer verdict. The current decision for a
// (reg_number, stage) is the latest by created_at, ties broken by id.
type Decision struct {
	ID        int64        `json:"id" db:"id"`
	UserID    int64        `json:"user_id" db:"user_id"`
	RegNumber string       `json:"reg_number" db:"reg_number"`
	Stage     int          `json:"stage" db:"stage"`
	Decision  DecisionKind `json:"decision" db:"decision"`
	Comment   *string      `json:"comment,omitempty" db:"comment"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// Override replaces one computed attribute for one user and record.
type Override struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	RegNumber string    `json:"reg_number" db:"reg_number"`
	FieldName string    `json:"field_name" db:"field_name"`
	Value     string    `json:"value" db:"value"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Selection marks a record as chosen by a user for the listing run.
type Selection struct {
	UserID     int64     `json:"user_id" db:"user_id"`
	RegNumber  string    `json:"reg_number" db:"reg_number"`
	SelectedAt time.Time `json:"selected_at" db:"selected_at"`
}
