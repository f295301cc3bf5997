package feedback

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/user"
)

// Message of the notification sent to the student.
const NotificationMessage = "New feedback received for your submission."

type Feedback struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	StudentID    string    `json:"studentId"`
	LecturerID   string    `json:"lecturerId"`
	SubmissionID string    `json:"submissionId"`
	Message      string    `json:"message"`
	SentAt       time.Time `json:"sentAt"` // UTC
}

type SubmissionRef struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// Detail is a Feedback with its users and submission expanded.
type Detail struct {
	ID         string         `json:"id"`
	ProjectID  string         `json:"projectId"`
	Message    string         `json:"message"`
	SentAt     time.Time      `json:"sentAt"`
	Student    *user.Summary  `json:"student"`
	Lecturer   *user.Summary  `json:"lecturer"`
	Submission *SubmissionRef `json:"submission"`
}

type NewFeedback struct {
	SubmissionID string `json:"submissionId" validate:"required"`
	Message      string `json:"message" validate:"required,notblank"`
}

func (nf *NewFeedback) Validate(validate *validator.Validate) error {
	nf.SubmissionID = core.CleanString(nf.SubmissionID)
	nf.Message = core.CleanString(nf.Message)
	return validate.Struct(nf)
}

// QueryFilter restricts a feedback listing. Empty fields do not filter.
type QueryFilter struct {
	ProjectID    string
	StudentID    string
	SubmissionID string
}
