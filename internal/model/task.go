package model

import "time"

// Defaults applied to every task created by the mail scan pipeline.
const (
	PriorityMedium     = "medium"
	ProgressNotStarted = "not-started"
)

// Category is a task category row. Categories are seeded by schema
// migration and never created by the pipeline.
type Category struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Task is a persisted accounting task materialized from a classified
// email. The pipeline only ever inserts tasks; updates and deletes
// happen elsewhere.
type Task struct {
	ID         int64 `db:"id"`
	CategoryID int64 `db:"category_id"`

	// CompanyName is the message subject truncated to 100 characters.
	CompanyName string `db:"company_name"`

	// Description is the rendered multi-section text block built from
	// the decoded message.
	Description string `db:"description"`

	// AssignedTo is nil at creation; assignment happens later.
	AssignedTo *string `db:"assigned_to"`

	Priority string    `db:"priority"`
	Progress string    `db:"progress"`
	DueDate  time.Time `db:"due_date"`

	// CreatedBy is the ID of the mailbox account the message was
	// ingested from.
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}
