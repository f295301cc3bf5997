package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/psms/core/feedback"
)

type feedbackRepository struct {
	db *DB
}

var _ feedback.Repository = (*feedbackRepository)(nil)

func NewFeedbackRepository(db *DB) *feedbackRepository {
	return &feedbackRepository{db: db}
}

func (repo *feedbackRepository) CreateFeedback(_ context.Context, fb feedback.Feedback) (feedback.Feedback, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	fb.ID = uuid.New().String()
	repo.db.feedback[fb.ID] = &feedbackRow{row: repo.db.nextRow(), Feedback: fb}
	return fb, nil
}

func (repo *feedbackRepository) QueryFeedback(_ context.Context, filter feedback.QueryFilter) ([]feedback.Feedback, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]*feedbackRow, 0)
	for _, r := range repo.db.feedback {
		if filter.ProjectID != "" && r.ProjectID != filter.ProjectID {
			continue
		}
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		if filter.SubmissionID != "" && r.SubmissionID != filter.SubmissionID {
			continue
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].SentAt.Equal(rows[j].SentAt) {
			return rows[i].SentAt.After(rows[j].SentAt)
		}
		return rows[i].seq > rows[j].seq
	})

	fbs := make([]feedback.Feedback, 0, len(rows))
	for _, r := range rows {
		fbs = append(fbs, r.Feedback)
	}
	return fbs, nil
}

func (repo *feedbackRepository) CountFeedback(_ context.Context) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.db.feedback), nil
}
