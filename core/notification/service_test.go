package notification_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/psms/core/notification"
	"github.com/trezcool/psms/core/user"
	"github.com/trezcool/psms/storage/database/inmem"
	"github.com/trezcool/psms/testutil"
)

type push struct {
	userID string
	typ    string
	data   interface{}
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []push
}

func (p *fakePusher) Push(userID, typ string, data interface{}) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push{userID: userID, typ: typ, data: data})
	return 0 // nobody connected
}

func TestService_Notify(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewNotificationRepository(inmemdb.Open())
	pusher := &fakePusher{}
	svc := notification.NewService(repo, pusher, testutil.NopLogger{})

	n, err := svc.Notify(ctx, "u1", "hello", notification.TypeFeedback, "fb1")
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Read)
	assert.False(t, n.CreatedAt.IsZero())

	// stored even though no connection received it
	stored, err := repo.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n, stored)

	require.Len(t, pusher.pushes, 1)
	assert.Equal(t, "u1", pusher.pushes[0].userID)
	assert.Equal(t, notification.PushType, pusher.pushes[0].typ)
	assert.Equal(t, n, pusher.pushes[0].data)
}

func TestService_Notify_noPusher(t *testing.T) {
	svc := notification.NewService(inmemdb.NewNotificationRepository(inmemdb.Open()), nil, testutil.NopLogger{})

	_, err := svc.Notify(context.Background(), "u1", "hello", notification.TypeFeedback, "")
	require.NoError(t, err)
}

func TestService_readState(t *testing.T) {
	ctx := context.Background()
	svc := notification.NewService(inmemdb.NewNotificationRepository(inmemdb.Open()), &fakePusher{}, testutil.NopLogger{})
	owner := user.User{ID: "u1"}
	other := user.User{ID: "u2"}

	first, err := svc.Notify(ctx, owner.ID, "one", notification.TypeFeedback, "")
	require.NoError(t, err)
	_, err = svc.Notify(ctx, owner.ID, "two", notification.TypeFeedback, "")
	require.NoError(t, err)
	_, err = svc.Notify(ctx, other.ID, "three", notification.TypeFeedback, "")
	require.NoError(t, err)

	_, err = svc.MarkRead(ctx, other, first.ID)
	assert.Equal(t, notification.ErrNotFound, err)

	n, err := svc.MarkRead(ctx, owner, first.ID)
	require.NoError(t, err)
	assert.True(t, n.Read)

	cnt, err := svc.UnreadCount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	updated, err := svc.MarkAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	cnt, err = svc.UnreadCount(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	ns, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, ns, 2)
	assert.Equal(t, "two", ns[0].Message)
}
