package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/project"
)

const projectColumns = "id, name, description, deadline, supervisor_id, status, created_by_id, created_at, updated_at"

type projectRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Description  string      `db:"description"`
	Deadline     time.Time   `db:"deadline"`
	SupervisorID string      `db:"supervisor_id"`
	Status       string      `db:"status"`
	CreatedByID  null.String `db:"created_by_id"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func toProjectRow(p project.Project) projectRow {
	return projectRow{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Deadline:     p.Deadline.UTC(),
		SupervisorID: p.SupervisorID,
		Status:       p.Status,
		CreatedByID:  null.NewString(p.CreatedByID, p.CreatedByID != ""),
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func (r projectRow) project(studentIDs []string) project.Project {
	if studentIDs == nil {
		studentIDs = []string{}
	}
	return project.Project{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Deadline:     r.Deadline.UTC(),
		SupervisorID: r.SupervisorID,
		StudentIDs:   studentIDs,
		Status:       r.Status,
		CreatedByID:  r.CreatedByID.String,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type projectStudentRow struct {
	ProjectID string `db:"project_id"`
	StudentID string `db:"student_id"`
}

type projectRepository struct {
	db *sqlx.DB
}

var _ project.Repository = (*projectRepository)(nil)

func NewProjectRepository(db *sqlx.DB) *projectRepository {
	return &projectRepository{db: db}
}

func (repo projectRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func setStudents(ctx context.Context, tx *sqlx.Tx, projectID string, studentIDs []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM project_students WHERE project_id = $1", projectID); err != nil {
		return errors.Wrap(err, "clearing project students")
	}
	for i, id := range studentIDs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO project_students (project_id, student_id, position) VALUES ($1, $2, $3)", projectID, id, i)
		if err != nil {
			return errors.Wrap(err, "adding project student")
		}
	}
	return nil
}

// students returns the ordered student IDs of each project.
func (repo projectRepository) students(ctx context.Context, projectIDs ...string) (map[string][]string, error) {
	byProject := make(map[string][]string, len(projectIDs))
	if len(projectIDs) == 0 {
		return byProject, nil
	}
	q, args, err := sqlx.In(
		"SELECT project_id, student_id FROM project_students WHERE project_id IN (?) ORDER BY project_id, position",
		projectIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building project students query")
	}
	var rows []projectStudentRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying project students")
	}
	for _, r := range rows {
		byProject[r.ProjectID] = append(byProject[r.ProjectID], r.StudentID)
	}
	return byProject, nil
}

func (repo projectRepository) CreateProject(ctx context.Context, p project.Project) (project.Project, error) {
	p.ID = uuid.New().String()
	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		q := `INSERT INTO projects (` + projectColumns + `) VALUES (
			:id, :name, :description, :deadline, :supervisor_id, :status, :created_by_id, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, q, toProjectRow(p)); err != nil {
			return errors.Wrap(err, "inserting project")
		}
		return setStudents(ctx, tx, p.ID, p.StudentIDs)
	})
	if err != nil {
		return project.Project{}, err
	}
	return p, nil
}

func (repo projectRepository) GetProject(ctx context.Context, id string) (project.Project, error) {
	if !isUUID(id) {
		return project.Project{}, project.ErrNotFound
	}
	var row projectRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+projectColumns+" FROM projects WHERE id = $1", id); err != nil {
		return project.Project{}, trapNoRowsErr(err, project.ErrNotFound, "getting project")
	}
	students, err := repo.students(ctx, id)
	if err != nil {
		return project.Project{}, err
	}
	return row.project(students[id]), nil
}

func (repo projectRepository) QueryProjects(ctx context.Context, filter project.QueryFilter, ordering []core.DBOrdering) ([]project.Project, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.SupervisorID != "" {
		if !isUUID(filter.SupervisorID) {
			return []project.Project{}, nil
		}
		conds = append(conds, "supervisor_id = ?")
		args = append(args, filter.SupervisorID)
	}
	if filter.StudentID != "" {
		if !isUUID(filter.StudentID) {
			return []project.Project{}, nil
		}
		conds = append(conds, "id IN (SELECT project_id FROM project_students WHERE student_id = ?)")
		args = append(args, filter.StudentID)
	}

	q := repo.db.Rebind("SELECT " + projectColumns + " FROM projects" + where(conds) + orderBy(ordering))
	var rows []projectRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying projects")
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	students, err := repo.students(ctx, ids...)
	if err != nil {
		return nil, err
	}
	projects := make([]project.Project, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, r.project(students[r.ID]))
	}
	return projects, nil
}

func (repo projectRepository) UpdateProject(ctx context.Context, p project.Project) (project.Project, error) {
	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		q := `UPDATE projects SET
			name = :name, description = :description, deadline = :deadline, supervisor_id = :supervisor_id,
			status = :status, updated_at = :updated_at
			WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, q, toProjectRow(p))
		if err != nil {
			return errors.Wrap(err, "updating project")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return project.ErrNotFound
		}
		return setStudents(ctx, tx, p.ID, p.StudentIDs)
	})
	if err != nil {
		return project.Project{}, err
	}
	return p, nil
}

// DeleteProject relies on ON DELETE CASCADE for students, submissions & feedback.
func (repo projectRepository) DeleteProject(ctx context.Context, id string) error {
	if !isUUID(id) {
		return project.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting project")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return project.ErrNotFound
	}
	return nil
}

func (repo projectRepository) CountProjects(ctx context.Context) (int, error) {
	var cnt int
	err := repo.db.GetContext(ctx, &cnt, "SELECT COUNT(*) FROM projects")
	return cnt, errors.Wrap(err, "counting projects")
}
