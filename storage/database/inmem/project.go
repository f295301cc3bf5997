package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/project"
)

type projectRepository struct {
	db *DB
}

var _ project.Repository = (*projectRepository)(nil)

func NewProjectRepository(db *DB) *projectRepository {
	return &projectRepository{db: db}
}

func (repo *projectRepository) CreateProject(_ context.Context, p project.Project) (project.Project, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p.ID = uuid.New().String()
	p.StudentIDs = copyStrings(p.StudentIDs)
	repo.db.projects[p.ID] = &projectRow{row: repo.db.nextRow(), Project: p}
	return p.Clone(), nil
}

func (repo *projectRepository) GetProject(_ context.Context, id string) (project.Project, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.projects[id]; ok {
		return r.Project.Clone(), nil
	}
	return project.Project{}, project.ErrNotFound
}

func (repo *projectRepository) QueryProjects(_ context.Context, filter project.QueryFilter, ordering []core.DBOrdering) ([]project.Project, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rows := make([]*projectRow, 0)
	for _, r := range repo.db.projects {
		if filter.SupervisorID != "" && r.SupervisorID != filter.SupervisorID {
			continue
		}
		if filter.StudentID != "" && !containsString(r.StudentIDs, filter.StudentID) {
			continue
		}
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ordering {
			if c := compareProjects(rows[i].Project, rows[j].Project, ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return rows[i].seq > rows[j].seq
	})

	projects := make([]project.Project, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, r.Project.Clone())
	}
	return projects, nil
}

func compareProjects(a, b project.Project, column string) int {
	switch column {
	case "created_at":
		return compareTimes(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	case "deadline":
		return compareTimes(a.Deadline.UnixNano(), b.Deadline.UnixNano())
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "status":
		return strings.Compare(a.Status, b.Status)
	}
	return 0
}

func compareTimes(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func containsString(s []string, v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

func (repo *projectRepository) UpdateProject(_ context.Context, p project.Project) (project.Project, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.projects[p.ID]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	p.CreatedByID = r.CreatedByID
	p.CreatedAt = r.CreatedAt
	p.StudentIDs = copyStrings(p.StudentIDs)
	r.Project = p
	return p.Clone(), nil
}

// DeleteProject also deletes the project submissions & their feedback.
func (repo *projectRepository) DeleteProject(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.projects[id]; !ok {
		return project.ErrNotFound
	}
	delete(repo.db.projects, id)
	for subID, s := range repo.db.submissions {
		if s.ProjectID == id {
			delete(repo.db.submissions, subID)
		}
	}
	for fbID, fb := range repo.db.feedback {
		if fb.ProjectID == id {
			delete(repo.db.feedback, fbID)
		}
	}
	return nil
}

func (repo *projectRepository) CountProjects(_ context.Context) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.db.projects), nil
}
