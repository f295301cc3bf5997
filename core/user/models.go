package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/psms/core"
)

// Roles
const (
	RoleAdmin    = "admin"
	RoleLecturer = "lecturer"
	RoleStudent  = "student"
)

var AllRoles = []string{RoleAdmin, RoleLecturer, RoleStudent}

func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Department     string    `json:"department,omitempty"`
	Batch          string    `json:"batch,omitempty"`
	RegNo          string    `json:"regNo,omitempty"`
	Description    string    `json:"description,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	PasswordHash   []byte    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"` // UTC
	UpdatedAt      time.Time `json:"updatedAt"` // UTC
	LastLogin      time.Time `json:"-"`         // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsAdmin() bool    { return u.Role == RoleAdmin }
func (u User) IsLecturer() bool { return u.Role == RoleLecturer }
func (u User) IsStudent() bool  { return u.Role == RoleStudent }

// Summary is the public profile embedded in other resources.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Identity is what a logged in user gets to see about themselves.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u User) Identity() Identity {
	return Identity{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required,notblank"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"omitempty,eqfield=Password"`
	Role            string `json:"role" validate:"required,oneof=admin lecturer student"`
	Department      string `json:"department"`
	Batch           string `json:"batch"`
	RegNo           string `json:"regNo"`
	Description     string `json:"description"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.Department = core.CleanString(nu.Department)
	nu.Batch = core.CleanString(nu.Batch)
	nu.RegNo = core.CleanString(nu.RegNo)
	nu.Description = core.CleanString(nu.Description)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(ctx, nu.Email)
}

// UpdateProfile defines what a User may change on their own profile. Nil fields are left unchanged.
type UpdateProfile struct {
	Name           *string `json:"name" validate:"omitempty,notblank"`
	Description    *string `json:"description"`
	ProfilePicture *string `json:"profilePicture" validate:"omitempty,max=2048"`
	Department     *string `json:"department"`
	Batch          *string `json:"batch"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{up.Name, up.Description, up.ProfilePicture, up.Department, up.Batch} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	return validate.Struct(up)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search string   `query:"search"`
	Role   string   `query:"role"`
	IDs    []string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}

// GetFilter finds a single User by ID or Email (first non-empty wins).
type GetFilter struct {
	ID    string
	Email string
}
