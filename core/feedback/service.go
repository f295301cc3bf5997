package feedback

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/notification"
	"github.com/trezcool/psms/core/project"
	"github.com/trezcool/psms/core/submission"
	"github.com/trezcool/psms/core/user"
)

var (
	errLecturersOnly  = core.NewForbiddenError("only lecturers can send feedback")
	errNotSupervisor  = core.NewForbiddenError("you are not the supervisor of this project")
	errNotOwnFeedback = core.NewForbiddenError("students can only see their own feedback")
)

type (
	Repository interface {
		CreateFeedback(ctx context.Context, fb Feedback) (Feedback, error)
		// QueryFeedback applies AND operation on set QueryFilter fields, newest first.
		QueryFeedback(ctx context.Context, filter QueryFilter) ([]Feedback, error)
		CountFeedback(ctx context.Context) (int, error)
	}

	ProjectService interface {
		Get(ctx context.Context, caller user.User, id string) (project.Project, error)
	}

	SubmissionService interface {
		Get(ctx context.Context, id string) (submission.Submission, error)
		MarkReviewed(ctx context.Context, s submission.Submission) (submission.Submission, error)
	}

	NotificationService interface {
		Notify(ctx context.Context, userID, message, typ, referenceID string) (notification.Notification, error)
	}

	UserService interface {
		GetMany(ctx context.Context, ids ...string) (map[string]user.User, error)
	}

	Service struct {
		repo     Repository
		projSvc  ProjectService
		subSvc   SubmissionService
		notifSvc NotificationService
		usrSvc   UserService
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

func NewService(
	repo Repository,
	projSvc ProjectService,
	subSvc SubmissionService,
	notifSvc NotificationService,
	usrSvc UserService,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		projSvc:  projSvc,
		subSvc:   subSvc,
		notifSvc: notifSvc,
		usrSvc:   usrSvc,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

// Create records feedback from the project supervisor on a submission and notifies its student.
func (svc *Service) Create(ctx context.Context, caller user.User, nf NewFeedback) (Feedback, error) {
	if !caller.IsLecturer() {
		return Feedback{}, errLecturersOnly
	}

	sub, err := svc.subSvc.Get(ctx, nf.SubmissionID)
	if err != nil {
		return Feedback{}, err
	}
	p, err := svc.projSvc.Get(ctx, caller, sub.ProjectID)
	if err != nil {
		if core.IsForbidden(err) {
			return Feedback{}, errNotSupervisor
		}
		return Feedback{}, err
	}
	if !p.IsSupervisor(caller) {
		return Feedback{}, errNotSupervisor
	}

	fb, err := svc.repo.CreateFeedback(ctx, Feedback{
		ProjectID:    p.ID,
		StudentID:    sub.StudentID,
		LecturerID:   caller.ID,
		SubmissionID: sub.ID,
		Message:      nf.Message,
		SentAt:       time.Now().UTC(),
	})
	if err != nil {
		return Feedback{}, errors.Wrap(err, "creating feedback")
	}

	if _, err = svc.notifSvc.Notify(ctx, fb.StudentID, NotificationMessage, notification.TypeFeedback, fb.ID); err != nil {
		return Feedback{}, errors.Wrap(err, "notifying student")
	}
	if _, err = svc.subSvc.MarkReviewed(ctx, sub); err != nil {
		svc.logger.Error("marking submission reviewed", err, caller)
	}
	svc.sendFeedbackMail(ctx, caller, p, sub, fb)
	return fb, nil
}

func (svc *Service) sendFeedbackMail(ctx context.Context, lecturer user.User, p project.Project, sub submission.Submission, fb Feedback) {
	users, err := svc.usrSvc.GetMany(ctx, fb.StudentID)
	if err != nil {
		svc.logger.Error("getting feedback student", err, lecturer)
		return
	}
	student, ok := users[fb.StudentID]
	if !ok {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "New feedback on your submission",
		TemplateName: "feedback_received",
		TemplateData: map[string]string{
			"StudentName":  student.Name,
			"LecturerName": lecturer.Name,
			"ProjectID":    p.ID,
			"ProjectName":  p.Name,
			"Filename":     sub.OriginalName,
			"Message":      fb.Message,
		},
	})
}

// List returns the project feedback visible to caller, newest first.
// Admins & the supervisor see everything (optionally for one student); students only see their own.
func (svc *Service) List(ctx context.Context, caller user.User, projectID, studentID string) ([]Feedback, error) {
	p, err := svc.projSvc.Get(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !p.IsSupervisor(caller) {
		if studentID != "" && studentID != caller.ID {
			return nil, errNotOwnFeedback
		}
		studentID = caller.ID
	}
	fbs, err := svc.repo.QueryFeedback(ctx, QueryFilter{ProjectID: p.ID, StudentID: studentID})
	return fbs, errors.Wrap(err, "querying feedback")
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	cnt, err := svc.repo.CountFeedback(ctx)
	return cnt, errors.Wrap(err, "counting feedback")
}

// Details expands the users & submissions of the given feedback.
func (svc *Service) Details(ctx context.Context, fbs ...Feedback) ([]Detail, error) {
	ids := make([]string, 0, 2*len(fbs))
	for _, fb := range fbs {
		ids = append(ids, fb.StudentID, fb.LecturerID)
	}
	users, err := svc.usrSvc.GetMany(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "getting feedback users")
	}
	summary := func(id string) *user.Summary {
		if usr, ok := users[id]; ok {
			s := usr.Summary()
			return &s
		}
		return nil
	}

	subs := make(map[string]*SubmissionRef)
	details := make([]Detail, 0, len(fbs))
	for _, fb := range fbs {
		ref, ok := subs[fb.SubmissionID]
		if !ok {
			if sub, err := svc.subSvc.Get(ctx, fb.SubmissionID); err == nil {
				ref = &SubmissionRef{ID: sub.ID, OriginalName: sub.OriginalName, SubmittedAt: sub.SubmittedAt}
			} else if !core.IsNotFound(err) {
				return nil, errors.Wrap(err, "getting feedback submission")
			}
			subs[fb.SubmissionID] = ref
		}
		details = append(details, Detail{
			ID:         fb.ID,
			ProjectID:  fb.ProjectID,
			Message:    fb.Message,
			SentAt:     fb.SentAt,
			Student:    summary(fb.StudentID),
			Lecturer:   summary(fb.LecturerID),
			Submission: ref,
		})
	}
	return details, nil
}
