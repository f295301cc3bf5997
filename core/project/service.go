package project

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/user"
)

var (
	// errors
	ErrNotFound  = core.NewNotFoundError("project")
	ErrForbidden = core.NewForbiddenError("you do not have access to this project")

	errInvalidProject = errors.New("invalid project")
	errNotSupervisor  = core.NewForbiddenError("only the project supervisor can do this")
	errStatusOnly     = core.NewForbiddenError("supervisors can only update the project status")
	errAdminOnly      = core.NewForbiddenError("only admins can do this")

	// DefaultOrdering lists the newest projects first.
	DefaultOrdering = []core.DBOrdering{{Field: "created_at", Ascending: false}}

	// OrderingFields maps the API ordering fields to columns.
	OrderingFields = map[string]string{
		"created_at": "created_at",
		"createdAt":  "created_at",
		"deadline":   "deadline",
		"name":       "name",
		"status":     "status",
	}
)

type (
	Repository interface {
		CreateProject(ctx context.Context, p Project) (Project, error)
		GetProject(ctx context.Context, id string) (Project, error)
		// QueryProjects applies AND operation on set QueryFilter fields.
		QueryProjects(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Project, error)
		UpdateProject(ctx context.Context, p Project) (Project, error)
		// DeleteProject also removes the project submissions & feedback.
		DeleteProject(ctx context.Context, id string) error
		CountProjects(ctx context.Context) (int, error)
	}

	UserService interface {
		GetMany(ctx context.Context, ids ...string) (map[string]user.User, error)
	}

	Service struct {
		repo   Repository
		usrSvc UserService
	}
)

func NewService(repo Repository, usrSvc UserService) *Service {
	return &Service{repo: repo, usrSvc: usrSvc}
}

// checkMembers reports a supervisor that is not a lecturer and students that are not students.
// An empty supervisorID is not checked.
func (svc *Service) checkMembers(ctx context.Context, supervisorID string, studentIDs []string) ([]core.FieldError, error) {
	ids := make([]string, 0, len(studentIDs)+1)
	if supervisorID != "" {
		ids = append(ids, supervisorID)
	}
	ids = append(ids, studentIDs...)
	if len(ids) == 0 {
		return nil, nil
	}

	users, err := svc.usrSvc.GetMany(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting project members")
	}

	var fldErrs []core.FieldError
	if supervisorID != "" {
		if usr, ok := users[supervisorID]; !ok {
			fldErrs = append(fldErrs, core.FieldError{Field: "supervisor", Error: "supervisor not found"})
		} else if !usr.IsLecturer() {
			fldErrs = append(fldErrs, core.FieldError{Field: "supervisor", Error: "supervisor must be a lecturer"})
		}
	}
	for i, id := range studentIDs {
		fld := fmt.Sprintf("students[%d]", i)
		if usr, ok := users[id]; !ok {
			fldErrs = append(fldErrs, core.FieldError{Field: fld, Error: fmt.Sprintf("student %s not found", id)})
		} else if !usr.IsStudent() {
			fldErrs = append(fldErrs, core.FieldError{Field: fld, Error: fmt.Sprintf("%s is not a student", usr.Name)})
		}
	}
	return fldErrs, nil
}

// Create stores a new pending Project from validated data.
func (svc *Service) Create(ctx context.Context, caller user.User, np NewProject) (Project, error) {
	if !caller.IsAdmin() {
		return Project{}, errAdminOnly
	}
	deadline, _ := ParseDeadline(np.Deadline)
	now := time.Now().UTC()
	p := Project{
		Name:         np.Name,
		Description:  np.Description,
		Deadline:     deadline,
		SupervisorID: np.SupervisorID,
		StudentIDs:   np.StudentIDs,
		Status:       StatusPending,
		CreatedByID:  caller.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.StudentIDs == nil {
		p.StudentIDs = []string{}
	}
	p, err := svc.repo.CreateProject(ctx, p)
	return p, errors.Wrap(err, "creating project")
}

// Query lists the projects visible to caller: all for admins, supervised ones for lecturers
// and the ones they are members of for students.
func (svc *Service) Query(ctx context.Context, caller user.User, ordering []core.DBOrdering) ([]Project, error) {
	var filter QueryFilter
	switch caller.Role {
	case user.RoleAdmin:
	case user.RoleLecturer:
		filter.SupervisorID = caller.ID
	case user.RoleStudent:
		filter.StudentID = caller.ID
	default:
		return []Project{}, nil
	}

	ordering = core.CleanOrderings(ordering, OrderingFields, DefaultOrdering...)
	projects, err := svc.repo.QueryProjects(ctx, filter, ordering)
	return projects, errors.Wrap(err, "querying projects")
}

// Get returns the project if it exists (ErrNotFound) and caller may see it (ErrForbidden).
func (svc *Service) Get(ctx context.Context, caller user.User, id string) (Project, error) {
	p, err := svc.repo.GetProject(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Project{}, ErrNotFound
		}
		return Project{}, errors.Wrap(err, "getting project")
	}
	if !p.IsVisibleTo(caller) {
		return Project{}, ErrForbidden
	}
	return p, nil
}

// Update applies validated changes. Admins may change anything; the supervisor may change the status only.
func (svc *Service) Update(ctx context.Context, caller user.User, id string, up UpdateProject) (Project, error) {
	p, err := svc.Get(ctx, caller, id)
	if err != nil {
		return Project{}, err
	}
	if !caller.IsAdmin() {
		if !p.IsSupervisor(caller) {
			return Project{}, errNotSupervisor
		}
		if !up.OnlyStatus() {
			return Project{}, errStatusOnly
		}
	}

	if up.Name != nil {
		p.Name = *up.Name
	}
	if up.Description != nil {
		p.Description = *up.Description
	}
	if up.Deadline != nil {
		p.Deadline, _ = ParseDeadline(*up.Deadline)
	}
	if up.SupervisorID != nil {
		p.SupervisorID = *up.SupervisorID
	}
	if up.StudentIDs != nil {
		p.StudentIDs = up.StudentIDs
	}
	if up.Status != nil {
		p.Status = *up.Status
	}
	p.UpdatedAt = time.Now().UTC()

	p, err = svc.repo.UpdateProject(ctx, p)
	return p, errors.Wrap(err, "updating project")
}

// UpdateStatus sets the project status (admins & the project supervisor).
func (svc *Service) UpdateStatus(ctx context.Context, caller user.User, id string, us UpdateStatus) (Project, error) {
	return svc.Update(ctx, caller, id, UpdateProject{Status: &us.Status})
}

// Delete removes the project (admins only). Submissions & feedback go with it.
func (svc *Service) Delete(ctx context.Context, caller user.User, id string) error {
	if !caller.IsAdmin() {
		return errAdminOnly
	}
	if _, err := svc.Get(ctx, caller, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteProject(ctx, id), "deleting project")
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	cnt, err := svc.repo.CountProjects(ctx)
	return cnt, errors.Wrap(err, "counting projects")
}

// Details expands the users of the given projects.
func (svc *Service) Details(ctx context.Context, projects ...Project) ([]Detail, error) {
	idSet := make(map[string]struct{})
	for _, p := range projects {
		idSet[p.SupervisorID] = struct{}{}
		idSet[p.CreatedByID] = struct{}{}
		for _, id := range p.StudentIDs {
			idSet[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		if id != "" {
			ids = append(ids, id)
		}
	}
	users, err := svc.usrSvc.GetMany(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting project users")
	}

	summary := func(id string) *user.Summary {
		if usr, ok := users[id]; ok {
			s := usr.Summary()
			return &s
		}
		return nil
	}

	details := make([]Detail, 0, len(projects))
	for _, p := range projects {
		students := make([]user.Summary, 0, len(p.StudentIDs))
		for _, id := range p.StudentIDs {
			if s := summary(id); s != nil {
				students = append(students, *s)
			}
		}
		details = append(details, Detail{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Deadline:    p.Deadline,
			Status:      p.Status,
			Supervisor:  summary(p.SupervisorID),
			Students:    students,
			CreatedBy:   summary(p.CreatedByID),
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		})
	}
	return details, nil
}

// Detail expands the users of a single project.
func (svc *Service) Detail(ctx context.Context, p Project) (Detail, error) {
	details, err := svc.Details(ctx, p)
	if err != nil {
		return Detail{}, err
	}
	return details[0], nil
}
