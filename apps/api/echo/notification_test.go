package echoapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/psms/core/feedback"
	"github.com/trezcool/psms/core/notification"
	"github.com/trezcool/psms/core/user"
)

func (app *testApp) createNotification(t *testing.T, usr user.User, msg string, read bool, createdAt time.Time) notification.Notification {
	t.Helper()
	ctx := context.Background()
	n, err := app.notifRepo.CreateNotification(ctx, notification.Notification{
		UserID:    usr.ID,
		Message:   msg,
		Type:      notification.TypeFeedback,
		CreatedAt: createdAt.UTC(),
	})
	require.NoError(t, err)
	if read {
		n, err = app.notifRepo.MarkRead(ctx, n.ID)
		require.NoError(t, err)
	}
	return n
}

func Test_notificationApi(t *testing.T) {
	app := setup(t)
	student := app.createUser(t, "Student", "student@test.cd", user.RoleStudent)
	other := app.createUser(t, "Other", "other@test.cd", user.RoleStudent)
	token := app.getToken(t, student)

	now := time.Now()
	oldest := app.createNotification(t, student, "oldest", true, now.Add(-2*time.Hour))
	older := app.createNotification(t, student, "older", false, now.Add(-time.Hour))
	newest := app.createNotification(t, student, "newest", false, now)
	foreign := app.createNotification(t, other, "not yours", false, now)

	app.runTests(t, []httpTest{
		{name: "auth required", path: "/api/notifications", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "newest first", path: "/api/notifications", token: token, wantCode: http.StatusOK, wantData: marchallList(t, newest, older, oldest)},
		{name: "nothing yet", path: "/api/notifications", token: app.getToken(t, app.createUser(t, "New", "new@test.cd", user.RoleLecturer)), wantCode: http.StatusOK, wantData: marchallList(t)},
		{name: "unread count", path: "/api/notifications/unread-count", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, CountResponse{Count: 2})},
		{
			name: "mark someone else's", method: http.MethodPut, path: "/api/notifications/" + foreign.ID + "/read", token: token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "notification not found"}),
		},
		{name: "mark unknown", method: http.MethodPut, path: "/api/notifications/" + unknownID + "/read", token: token, wantCode: http.StatusNotFound},
	})

	t.Run("mark read", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/notifications/"+older.ID+"/read", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var n notification.Notification
		unmarchall(t, rec.Body.Bytes(), &n)
		assert.Equal(t, older.ID, n.ID)
		assert.True(t, n.Read)

		// idempotent
		req, rec = newAuthRequest(http.MethodPut, "/api/notifications/"+older.ID+"/read", token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	app.runTests(t, []httpTest{
		{name: "read all", method: http.MethodPut, path: "/api/notifications/read-all", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, UpdatedResponse{Updated: 1})},
		{name: "read all again", method: http.MethodPut, path: "/api/notifications/read-all", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, UpdatedResponse{Updated: 0})},
		{name: "all read", path: "/api/notifications/unread-count", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, CountResponse{Count: 0})},
		{name: "others untouched", path: "/api/notifications/unread-count", token: app.getToken(t, other), wantCode: http.StatusOK, wantData: marchallObj(t, CountResponse{Count: 1})},
	})
}

func Test_notificationApi_connect(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	lecturer := app.createUser(t, "Lecturer", "lecturer@test.cd", user.RoleLecturer)
	student := app.createUser(t, "Student", "student@test.cd", user.RoleStudent)
	p := app.createProject(t, "Capstone", admin, lecturer, student)
	sub := app.upload(t, student, p.ID, "proposal.pdf", pdfContent(1024))

	app.runTests(t, []httpTest{
		{name: "auth required", path: "/api/notifications/ws", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "bad query token", path: "/api/notifications/ws?token=nope", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid token"})},
	})

	srv := httptest.NewServer(app)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/ws?token=" + app.getToken(t, student)

	t.Run("foreign origin", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example.com"}})
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {app.conf.FrontendBaseURL}})
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return app.hub.ClientCount(student.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	type envelope struct {
		Type string                    `json:"type"`
		Data notification.Notification `json:"data"`
	}
	read := func() envelope {
		var msg envelope
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
		assert.Equal(t, "pong", read().Type)
	})

	t.Run("feedback is pushed", func(t *testing.T) {
		fb := app.sendFeedback(t, lecturer, sub.ID, "Looks good")

		msg := read()
		assert.Equal(t, notification.PushType, msg.Type)
		assert.Equal(t, student.ID, msg.Data.UserID)
		assert.Equal(t, notification.TypeFeedback, msg.Data.Type)
		assert.Equal(t, feedback.NotificationMessage, msg.Data.Message)
		assert.Equal(t, fb.ID, msg.Data.ReferenceID)
		assert.False(t, msg.Data.Read)
	})

	t.Run("disconnect", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
		require.Eventually(t, func() bool { return app.hub.ClientCount(student.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
	})
}
