package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/psms/core/notification"
)

const notificationColumns = "id, user_id, message, type, reference_id, read, created_at"

type notificationRow struct {
	ID          string      `db:"id"`
	UserID      string      `db:"user_id"`
	Message     string      `db:"message"`
	Type        string      `db:"type"`
	ReferenceID null.String `db:"reference_id"`
	Read        bool        `db:"read"`
	CreatedAt   time.Time   `db:"created_at"`
}

func toNotificationRow(n notification.Notification) notificationRow {
	return notificationRow{
		ID:          n.ID,
		UserID:      n.UserID,
		Message:     n.Message,
		Type:        n.Type,
		ReferenceID: null.NewString(n.ReferenceID, n.ReferenceID != ""),
		Read:        n.Read,
		CreatedAt:   n.CreatedAt.UTC(),
	}
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:          r.ID,
		UserID:      r.UserID,
		Message:     r.Message,
		Type:        r.Type,
		ReferenceID: r.ReferenceID.String,
		Read:        r.Read,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.ID = uuid.New().String()
	q := `INSERT INTO notifications (` + notificationColumns + `) VALUES (
		:id, :user_id, :message, :type, :reference_id, :read, :created_at)`
	row := toNotificationRow(n)
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return row.notification(), nil
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, userID string) ([]notification.Notification, error) {
	if !isUUID(userID) {
		return []notification.Notification{}, nil
	}
	var rows []notificationRow
	q := "SELECT " + notificationColumns + " FROM notifications WHERE user_id = $1 ORDER BY created_at DESC"
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.notification())
	}
	return ns, nil
}

func (repo notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	if !isUUID(id) {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	if err := repo.db.GetContext(ctx, &row, "SELECT "+notificationColumns+" FROM notifications WHERE id = $1", id); err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound, "getting notification")
	}
	return row.notification(), nil
}

func (repo notificationRepository) MarkRead(ctx context.Context, id string) (notification.Notification, error) {
	if !isUUID(id) {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	q := "UPDATE notifications SET read = TRUE WHERE id = $1 RETURNING " + notificationColumns
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound, "marking notification read")
	}
	return row.notification(), nil
}

func (repo notificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	if !isUUID(userID) {
		return 0, nil
	}
	res, err := repo.db.ExecContext(ctx, "UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read", userID)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "marking notifications read")
}

func (repo notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	if !isUUID(userID) {
		return 0, nil
	}
	var cnt int
	err := repo.db.GetContext(ctx, &cnt, "SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read", userID)
	return cnt, errors.Wrap(err, "counting unread notifications")
}
