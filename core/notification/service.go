package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/user"
)

// ErrNotFound is also returned for notifications owned by someone else.
var ErrNotFound = core.NewNotFoundError("notification")

// PushType is the envelope type of notifications pushed to live connections.
const PushType = "notification"

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		// QueryNotifications returns the notifications of a user, newest first.
		QueryNotifications(ctx context.Context, userID string) ([]Notification, error)
		GetNotification(ctx context.Context, id string) (Notification, error)
		MarkRead(ctx context.Context, id string) (Notification, error)
		// MarkAllRead returns the number of notifications that were unread.
		MarkAllRead(ctx context.Context, userID string) (int, error)
		CountUnread(ctx context.Context, userID string) (int, error)
	}

	// Pusher delivers a message to the live connections of a user, if any.
	// It must not block: connections that cannot keep up are dropped.
	Pusher interface {
		Push(userID, typ string, data interface{}) int
	}

	Service struct {
		repo   Repository
		pusher Pusher
		logger core.Logger
	}
)

func NewService(repo Repository, pusher Pusher, logger core.Logger) *Service {
	return &Service{repo: repo, pusher: pusher, logger: logger}
}

// Notify stores a notification for userID then pushes it to their live connections.
// The notification is persisted even when nobody is connected.
func (svc *Service) Notify(ctx context.Context, userID, message, typ, referenceID string) (Notification, error) {
	n, err := svc.repo.CreateNotification(ctx, Notification{
		UserID:      userID,
		Message:     message,
		Type:        typ,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Notification{}, errors.Wrap(err, "creating notification")
	}
	if svc.pusher != nil {
		delivered := svc.pusher.Push(userID, PushType, n)
		svc.logger.Debug("notification pushed", map[string]interface{}{"notification": n.ID, "connections": delivered})
	}
	return n, nil
}

func (svc *Service) List(ctx context.Context, caller user.User) ([]Notification, error) {
	ns, err := svc.repo.QueryNotifications(ctx, caller.ID)
	return ns, errors.Wrap(err, "querying notifications")
}

// MarkRead marks one of caller's notifications as read.
func (svc *Service) MarkRead(ctx context.Context, caller user.User, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Notification{}, ErrNotFound
		}
		return Notification{}, errors.Wrap(err, "getting notification")
	}
	if n.UserID != caller.ID {
		return Notification{}, ErrNotFound
	}
	if n.Read {
		return n, nil
	}
	n, err = svc.repo.MarkRead(ctx, id)
	return n, errors.Wrap(err, "marking notification read")
}

func (svc *Service) MarkAllRead(ctx context.Context, caller user.User) (int, error) {
	cnt, err := svc.repo.MarkAllRead(ctx, caller.ID)
	return cnt, errors.Wrap(err, "marking notifications read")
}

func (svc *Service) UnreadCount(ctx context.Context, caller user.User) (int, error) {
	cnt, err := svc.repo.CountUnread(ctx, caller.ID)
	return cnt, errors.Wrap(err, "counting unread notifications")
}
