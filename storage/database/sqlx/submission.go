package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/psms/core/submission"
)

const submissionColumns = "id, project_id, student_id, filename, original_name, filepath, content_type, size, status, submitted_at"

type submissionRow struct {
	ID           string    `db:"id"`
	ProjectID    string    `db:"project_id"`
	StudentID    string    `db:"student_id"`
	Filename     string    `db:"filename"`
	OriginalName string    `db:"original_name"`
	Filepath     string    `db:"filepath"`
	ContentType  string    `db:"content_type"`
	Size         int64     `db:"size"`
	Status       string    `db:"status"`
	SubmittedAt  time.Time `db:"submitted_at"`
}

func (r submissionRow) submission() submission.Submission {
	s := submission.Submission(r)
	s.SubmittedAt = s.SubmittedAt.UTC()
	return s
}

type submissionRepository struct {
	db *sqlx.DB
}

var _ submission.Repository = (*submissionRepository)(nil)

func NewSubmissionRepository(db *sqlx.DB) *submissionRepository {
	return &submissionRepository{db: db}
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, s submission.Submission) (submission.Submission, error) {
	s.ID = uuid.New().String()
	s.SubmittedAt = s.SubmittedAt.UTC()
	q := `INSERT INTO submissions (` + submissionColumns + `) VALUES (
		:id, :project_id, :student_id, :filename, :original_name, :filepath, :content_type, :size, :status, :submitted_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, submissionRow(s)); err != nil {
		return submission.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return s, nil
}

func (repo submissionRepository) GetSubmission(ctx context.Context, filter submission.GetFilter) (submission.Submission, error) {
	var (
		row submissionRow
		err error
	)
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return submission.Submission{}, submission.ErrNotFound
		}
		err = repo.db.GetContext(ctx, &row, "SELECT "+submissionColumns+" FROM submissions WHERE id = $1", filter.ID)
	case filter.Filename != "":
		err = repo.db.GetContext(ctx, &row, "SELECT "+submissionColumns+" FROM submissions WHERE filename = $1", filter.Filename)
	default:
		return submission.Submission{}, submission.ErrNotFound
	}
	if err != nil {
		return submission.Submission{}, trapNoRowsErr(err, submission.ErrNotFound, "getting submission")
	}
	return row.submission(), nil
}

func (repo submissionRepository) QuerySubmissions(ctx context.Context, filter submission.QueryFilter) ([]submission.Submission, error) {
	var (
		conds []string
		args  []interface{}
	)
	for col, val := range map[string]string{"project_id": filter.ProjectID, "student_id": filter.StudentID} {
		if val == "" {
			continue
		}
		if !isUUID(val) {
			return []submission.Submission{}, nil
		}
		conds = append(conds, col+" = ?")
		args = append(args, val)
	}

	q := repo.db.Rebind("SELECT " + submissionColumns + " FROM submissions" + where(conds) + " ORDER BY submitted_at DESC")
	var rows []submissionRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]submission.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.submission())
	}
	return subs, nil
}

func (repo submissionRepository) UpdateSubmission(ctx context.Context, s submission.Submission) (submission.Submission, error) {
	res, err := repo.db.ExecContext(ctx, "UPDATE submissions SET status = $1 WHERE id = $2", s.Status, s.ID)
	if err != nil {
		return submission.Submission{}, errors.Wrap(err, "updating submission")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return submission.Submission{}, submission.ErrNotFound
	}
	return s, nil
}

func (repo submissionRepository) CountSubmissions(ctx context.Context) (int, error) {
	var cnt int
	err := repo.db.GetContext(ctx, &cnt, "SELECT COUNT(*) FROM submissions")
	return cnt, errors.Wrap(err, "counting submissions")
}
