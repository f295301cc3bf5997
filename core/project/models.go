package project

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/user"
)

// Statuses: pending -> approved | rejected; approved -> completed | cancelled
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var Statuses = []string{StatusPending, StatusApproved, StatusRejected, StatusCompleted, StatusCancelled}

type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Deadline     time.Time `json:"deadline"`
	SupervisorID string    `json:"supervisorId"`
	StudentIDs   []string  `json:"studentIds"`
	Status       string    `json:"status"`
	CreatedByID  string    `json:"createdById"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
	UpdatedAt    time.Time `json:"updatedAt"` // UTC
}

func (p Project) IsSupervisor(usr user.User) bool {
	return usr.ID != "" && p.SupervisorID == usr.ID
}

func (p Project) HasStudent(usr user.User) bool {
	for _, id := range p.StudentIDs {
		if id == usr.ID {
			return true
		}
	}
	return false
}

// Clone returns a copy that does not share StudentIDs.
func (p Project) Clone() Project {
	ids := make([]string, len(p.StudentIDs))
	copy(ids, p.StudentIDs)
	p.StudentIDs = ids
	return p
}

// IsVisibleTo reports whether usr may read the project: admins, its supervisor and its students.
func (p Project) IsVisibleTo(usr user.User) bool {
	return usr.IsAdmin() || p.IsSupervisor(usr) || p.HasStudent(usr)
}

// Detail is a Project with its users expanded to summaries.
type Detail struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Deadline    time.Time      `json:"deadline"`
	Status      string         `json:"status"`
	Supervisor  *user.Summary  `json:"supervisor"`
	Students    []user.Summary `json:"students"`
	CreatedBy   *user.Summary  `json:"createdBy"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// NewProject contains information needed to create a new Project.
type NewProject struct {
	Name         string   `json:"name" validate:"required,notblank"`
	Description  string   `json:"description" validate:"required,notblank"`
	Deadline     string   `json:"deadline" validate:"required,deadline"`
	SupervisorID string   `json:"supervisor" validate:"required"`
	StudentIDs   []string `json:"students" validate:"required,unique,dive,required"`
}

// Validate checks the payload and that the supervisor is a lecturer and all students are students.
// All violations are reported together.
func (np *NewProject) Validate(ctx context.Context, validate *validator.Validate, translator ut.Translator, svc *Service) error {
	np.Name = core.CleanString(np.Name)
	np.Description = core.CleanString(np.Description)
	np.Deadline = core.CleanString(np.Deadline)
	np.SupervisorID = core.CleanString(np.SupervisorID)
	for i := range np.StudentIDs {
		np.StudentIDs[i] = core.CleanString(np.StudentIDs[i])
	}

	fldErrs, err := structFieldErrors(validate, translator, np)
	if err != nil {
		return err
	}
	memberErrs, err := svc.checkMembers(ctx, np.SupervisorID, np.StudentIDs)
	if err != nil {
		return err
	}
	return fieldErrorsOrNil(append(fldErrs, memberErrs...))
}

// UpdateProject defines what information may be provided to modify an existing Project.
// Nil fields are left unchanged.
type UpdateProject struct {
	Name         *string  `json:"name" validate:"omitempty,notblank"`
	Description  *string  `json:"description" validate:"omitempty,notblank"`
	Deadline     *string  `json:"deadline" validate:"omitempty,deadline"`
	SupervisorID *string  `json:"supervisor" validate:"omitempty,notblank"`
	StudentIDs   []string `json:"students" validate:"omitempty,unique,dive,required"`
	Status       *string  `json:"status" validate:"omitempty,projectstatus"`
}

// OnlyStatus reports whether Status is the only field being changed.
func (up UpdateProject) OnlyStatus() bool {
	return up.Status != nil &&
		up.Name == nil && up.Description == nil && up.Deadline == nil && up.SupervisorID == nil && up.StudentIDs == nil
}

func (up *UpdateProject) Validate(ctx context.Context, validate *validator.Validate, translator ut.Translator, svc *Service) error {
	for _, fld := range []*string{up.Name, up.Description, up.Deadline, up.SupervisorID, up.Status} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	if up.Status != nil {
		*up.Status = core.CleanString(*up.Status, true /* lower */)
	}
	for i := range up.StudentIDs {
		up.StudentIDs[i] = core.CleanString(up.StudentIDs[i])
	}

	fldErrs, err := structFieldErrors(validate, translator, up)
	if err != nil {
		return err
	}
	if up.SupervisorID != nil || up.StudentIDs != nil {
		var supervisorID string
		if up.SupervisorID != nil {
			supervisorID = *up.SupervisorID
		}
		memberErrs, err := svc.checkMembers(ctx, supervisorID, up.StudentIDs)
		if err != nil {
			return err
		}
		fldErrs = append(fldErrs, memberErrs...)
	}
	return fieldErrorsOrNil(fldErrs)
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,projectstatus"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.Status = core.CleanString(us.Status, true /* lower */)
	return validate.Struct(us)
}

// QueryFilter restricts a project listing. Empty fields do not filter.
type QueryFilter struct {
	SupervisorID string
	StudentID    string
}

func structFieldErrors(validate *validator.Validate, translator ut.Translator, s interface{}) ([]core.FieldError, error) {
	err := validate.Struct(s)
	if err == nil {
		return nil, nil
	}
	return core.TranslateFieldErrors(err, translator)
}

func fieldErrorsOrNil(fldErrs []core.FieldError) error {
	if len(fldErrs) == 0 {
		return nil
	}
	return core.NewValidationError(errInvalidProject, fldErrs...)
}
