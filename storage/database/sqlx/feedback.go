package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/psms/core/feedback"
)

const feedbackColumns = "id, project_id, student_id, lecturer_id, submission_id, message, sent_at"

type feedbackRow struct {
	ID           string    `db:"id"`
	ProjectID    string    `db:"project_id"`
	StudentID    string    `db:"student_id"`
	LecturerID   string    `db:"lecturer_id"`
	SubmissionID string    `db:"submission_id"`
	Message      string    `db:"message"`
	SentAt       time.Time `db:"sent_at"`
}

type feedbackRepository struct {
	db *sqlx.DB
}

var _ feedback.Repository = (*feedbackRepository)(nil)

func NewFeedbackRepository(db *sqlx.DB) *feedbackRepository {
	return &feedbackRepository{db: db}
}

func (repo feedbackRepository) CreateFeedback(ctx context.Context, fb feedback.Feedback) (feedback.Feedback, error) {
	fb.ID = uuid.New().String()
	fb.SentAt = fb.SentAt.UTC()
	q := `INSERT INTO feedback (` + feedbackColumns + `) VALUES (
		:id, :project_id, :student_id, :lecturer_id, :submission_id, :message, :sent_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, feedbackRow(fb)); err != nil {
		return feedback.Feedback{}, errors.Wrap(err, "inserting feedback")
	}
	return fb, nil
}

func (repo feedbackRepository) QueryFeedback(ctx context.Context, filter feedback.QueryFilter) ([]feedback.Feedback, error) {
	var (
		conds []string
		args  []interface{}
	)
	for _, f := range []struct{ col, val string }{
		{"project_id", filter.ProjectID},
		{"student_id", filter.StudentID},
		{"submission_id", filter.SubmissionID},
	} {
		if f.val == "" {
			continue
		}
		if !isUUID(f.val) {
			return []feedback.Feedback{}, nil
		}
		conds = append(conds, f.col+" = ?")
		args = append(args, f.val)
	}

	q := repo.db.Rebind("SELECT " + feedbackColumns + " FROM feedback" + where(conds) + " ORDER BY sent_at DESC")
	var rows []feedbackRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying feedback")
	}
	fbs := make([]feedback.Feedback, 0, len(rows))
	for _, r := range rows {
		fb := feedback.Feedback(r)
		fb.SentAt = fb.SentAt.UTC()
		fbs = append(fbs, fb)
	}
	return fbs, nil
}

func (repo feedbackRepository) CountFeedback(ctx context.Context) (int, error) {
	var cnt int
	err := repo.db.GetContext(ctx, &cnt, "SELECT COUNT(*) FROM feedback")
	return cnt, errors.Wrap(err, "counting feedback")
}
