package submission

import (
	"io"
	"time"

	"github.com/trezcool/psms/core/user"
)

// Statuses
const (
	StatusSubmitted = "submitted"
	StatusReviewed  = "reviewed"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

var Statuses = []string{StatusSubmitted, StatusReviewed, StatusApproved, StatusRejected}

// URLPrefix is where stored files are served read-only.
const URLPrefix = "/uploads/"

type Submission struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	StudentID    string    `json:"studentId"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Filepath     string    `json:"-"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	Status       string    `json:"status"`
	SubmittedAt  time.Time `json:"submittedAt"` // UTC
}

func (s Submission) URL() string {
	return URLPrefix + s.Filename
}

// Detail is a Submission with its student expanded.
type Detail struct {
	Submission
	FileURL string        `json:"fileUrl"`
	Student *user.Summary `json:"student"`
}

// Upload is a proposal file sent by a student for a project.
type Upload struct {
	ProjectID    string
	OriginalName string
	Size         int64 // as announced by the client; the store enforces the real limit
	Content      io.Reader
}

// StoredFile describes a file durably written by a FileStore.
type StoredFile struct {
	Filename    string
	Path        string
	ContentType string
	Size        int64
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,oneof=submitted reviewed approved rejected"`
}

// QueryFilter restricts a submission listing. Empty fields do not filter.
type QueryFilter struct {
	ProjectID string
	StudentID string
}

// GetFilter finds a single Submission by ID or Filename (first non-empty wins).
type GetFilter struct {
	ID       string
	Filename string
}
