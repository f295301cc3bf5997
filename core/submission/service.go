package submission

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/project"
	"github.com/trezcool/psms/core/user"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("submission")
	ErrFileNotFound = core.NewNotFoundError("file")

	// returned by FileStore.Save
	ErrFileTooLarge       = errors.New("file too large")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")

	errStudentsOnly  = core.NewForbiddenError("only students can upload submissions")
	errNotMember     = core.NewForbiddenError("you are not a member of this project")
	errNoFileAccess  = core.NewForbiddenError("you do not have access to this submission")
	errNotSupervisor = core.NewForbiddenError("only the project supervisor can do this")
	errInvalidUpload = errors.New("invalid submission")
)

const fileField = "proposal"

type (
	Repository interface {
		CreateSubmission(ctx context.Context, s Submission) (Submission, error)
		GetSubmission(ctx context.Context, filter GetFilter) (Submission, error)
		// QuerySubmissions applies AND operation on set QueryFilter fields, newest first.
		QuerySubmissions(ctx context.Context, filter QueryFilter) ([]Submission, error)
		UpdateSubmission(ctx context.Context, s Submission) (Submission, error)
		CountSubmissions(ctx context.Context) (int, error)
	}

	// FileStore durably stores uploaded files.
	FileStore interface {
		// Save streams r to a uniquely named file with extension ext.
		// Nothing is left behind when it fails (ErrFileTooLarge, ErrFileTypeNotAllowed...).
		Save(ctx context.Context, r io.Reader, ext string) (StoredFile, error)
		Open(filename string) (io.ReadCloser, error)
		Remove(filename string) error
	}

	ProjectService interface {
		Get(ctx context.Context, caller user.User, id string) (project.Project, error)
	}

	UserService interface {
		GetMany(ctx context.Context, ids ...string) (map[string]user.User, error)
	}

	Service struct {
		repo        Repository
		store       FileStore
		projSvc     ProjectService
		usrSvc      UserService
		logger      core.Logger
		maxSize     int64
		allowedExts []string
	}
)

func NewService(repo Repository, store FileStore, projSvc ProjectService, usrSvc UserService, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:        repo,
		store:       store,
		projSvc:     projSvc,
		usrSvc:      usrSvc,
		logger:      logger,
		maxSize:     conf.Uploads.MaxSize,
		allowedExts: conf.Uploads.AllowedExts,
	}
}

func (svc *Service) isAllowedExt(ext string) bool {
	for _, allowed := range svc.allowedExts {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (svc *Service) uploadError(msg string) error {
	return core.NewValidationError(errInvalidUpload, core.FieldError{Field: fileField, Error: msg})
}

func (svc *Service) allowedExtsText() string {
	exts := make([]string, 0, len(svc.allowedExts))
	for _, ext := range svc.allowedExts {
		exts = append(exts, strings.TrimPrefix(ext, "."))
	}
	return strings.Join(exts, ", ")
}

// Create stores an uploaded proposal of caller for a project they are a member of.
// The stored file is removed if the submission cannot be recorded.
func (svc *Service) Create(ctx context.Context, caller user.User, up Upload) (Submission, error) {
	if !caller.IsStudent() {
		return Submission{}, errStudentsOnly
	}

	var fldErrs []core.FieldError
	up.ProjectID = core.CleanString(up.ProjectID)
	if up.ProjectID == "" {
		fldErrs = append(fldErrs, core.FieldError{Field: "projectId", Error: "this field is required"})
	}
	if up.Content == nil {
		fldErrs = append(fldErrs, core.FieldError{Field: fileField, Error: "no file uploaded"})
	}
	if len(fldErrs) > 0 {
		return Submission{}, core.NewValidationError(errInvalidUpload, fldErrs...)
	}

	p, err := svc.projSvc.Get(ctx, caller, up.ProjectID)
	if err != nil {
		if core.IsForbidden(err) {
			return Submission{}, errNotMember
		}
		return Submission{}, err
	}
	if !p.HasStudent(caller) {
		return Submission{}, errNotMember
	}

	ext := strings.ToLower(filepath.Ext(up.OriginalName))
	if !svc.isAllowedExt(ext) {
		return Submission{}, svc.uploadError("only " + svc.allowedExtsText() + " files are allowed")
	}
	if up.Size > svc.maxSize {
		return Submission{}, svc.uploadError(svc.tooLargeText())
	}

	stored, err := svc.store.Save(ctx, up.Content, ext)
	if err != nil {
		switch errors.Cause(err) {
		case ErrFileTooLarge:
			return Submission{}, svc.uploadError(svc.tooLargeText())
		case ErrFileTypeNotAllowed:
			return Submission{}, svc.uploadError("the file content does not match an allowed document type")
		}
		return Submission{}, errors.Wrap(err, "storing file")
	}

	s, err := svc.repo.CreateSubmission(ctx, Submission{
		ProjectID:    p.ID,
		StudentID:    caller.ID,
		Filename:     stored.Filename,
		OriginalName: filepath.Base(up.OriginalName),
		Filepath:     stored.Path,
		ContentType:  stored.ContentType,
		Size:         stored.Size,
		Status:       StatusSubmitted,
		SubmittedAt:  time.Now().UTC(),
	})
	if err != nil {
		if rmErr := svc.store.Remove(stored.Filename); rmErr != nil {
			svc.logger.Error("removing orphaned upload", errors.Wrap(rmErr, stored.Filename), caller)
		}
		return Submission{}, errors.Wrap(err, "creating submission")
	}
	return s, nil
}

func (svc *Service) tooLargeText() string {
	return fmt.Sprintf("file exceeds the %d MB limit", svc.maxSize>>20)
}

// List returns the project submissions visible to caller, newest first. Students only see their own.
func (svc *Service) List(ctx context.Context, caller user.User, projectID string) ([]Submission, error) {
	p, err := svc.projSvc.Get(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}
	filter := QueryFilter{ProjectID: p.ID}
	if !caller.IsAdmin() && !p.IsSupervisor(caller) {
		filter.StudentID = caller.ID
	}
	subs, err := svc.repo.QuerySubmissions(ctx, filter)
	return subs, errors.Wrap(err, "querying submissions")
}

// Get returns a submission without any access check.
func (svc *Service) Get(ctx context.Context, id string) (Submission, error) {
	s, err := svc.repo.GetSubmission(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Submission{}, ErrNotFound
		}
		return Submission{}, errors.Wrap(err, "getting submission")
	}
	return s, nil
}

// authorizeFile allows admins, the project supervisor and the owning student.
func (svc *Service) authorizeFile(ctx context.Context, caller user.User, s Submission) error {
	if caller.IsAdmin() || s.StudentID == caller.ID {
		return nil
	}
	p, err := svc.projSvc.Get(ctx, caller, s.ProjectID)
	if err != nil {
		if core.IsForbidden(err) {
			return errNoFileAccess
		}
		return err
	}
	if !p.IsSupervisor(caller) {
		return errNoFileAccess
	}
	return nil
}

// Open returns the submission file if caller may download it.
// ErrFileNotFound is returned when the record exists but the file is gone.
func (svc *Service) Open(ctx context.Context, caller user.User, filter GetFilter) (Submission, io.ReadCloser, error) {
	s, err := svc.repo.GetSubmission(ctx, filter)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Submission{}, nil, ErrNotFound
		}
		return Submission{}, nil, errors.Wrap(err, "getting submission")
	}
	if err = svc.authorizeFile(ctx, caller, s); err != nil {
		return Submission{}, nil, err
	}
	f, err := svc.store.Open(s.Filename)
	if err != nil {
		if errors.Cause(err) == ErrFileNotFound {
			return Submission{}, nil, ErrFileNotFound
		}
		return Submission{}, nil, errors.Wrap(err, "opening file")
	}
	return s, f, nil
}

// UpdateStatus sets the review status of a submission (admins & the project supervisor).
func (svc *Service) UpdateStatus(ctx context.Context, caller user.User, id string, us UpdateStatus) (Submission, error) {
	s, err := svc.Get(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if !caller.IsAdmin() {
		p, err := svc.projSvc.Get(ctx, caller, s.ProjectID)
		if err != nil && !core.IsForbidden(err) {
			return Submission{}, err
		}
		if err != nil || !p.IsSupervisor(caller) {
			return Submission{}, errNotSupervisor
		}
	}
	s.Status = us.Status
	s, err = svc.repo.UpdateSubmission(ctx, s)
	return s, errors.Wrap(err, "updating submission")
}

// MarkReviewed moves a submitted submission to reviewed. Other statuses are left as is.
func (svc *Service) MarkReviewed(ctx context.Context, s Submission) (Submission, error) {
	if s.Status != StatusSubmitted {
		return s, nil
	}
	s.Status = StatusReviewed
	s, err := svc.repo.UpdateSubmission(ctx, s)
	return s, errors.Wrap(err, "marking submission reviewed")
}

// RemoveFiles deletes the stored files of the given submissions, ignoring the ones already gone.
func (svc *Service) RemoveFiles(subs ...Submission) error {
	var failed []string
	for _, s := range subs {
		if err := svc.store.Remove(s.Filename); err != nil && errors.Cause(err) != ErrFileNotFound {
			failed = append(failed, s.Filename)
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("removing files: %s", strings.Join(failed, ", "))
	}
	return nil
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	cnt, err := svc.repo.CountSubmissions(ctx)
	return cnt, errors.Wrap(err, "counting submissions")
}

// Details expands the students of the given submissions.
func (svc *Service) Details(ctx context.Context, subs ...Submission) ([]Detail, error) {
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.StudentID)
	}
	users, err := svc.usrSvc.GetMany(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting submission students")
	}

	details := make([]Detail, 0, len(subs))
	for _, s := range subs {
		d := Detail{Submission: s, FileURL: s.URL()}
		if usr, ok := users[s.StudentID]; ok {
			summary := usr.Summary()
			d.Student = &summary
		}
		details = append(details, d)
	}
	return details, nil
}
