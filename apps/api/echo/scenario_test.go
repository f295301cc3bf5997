package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/psms/core/notification"
	"github.com/trezcool/psms/core/project"
	"github.com/trezcool/psms/core/user"
)

// Test_supervisionFlow walks a project from creation to feedback.
func Test_supervisionFlow(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	lecturerA := app.createUser(t, "Lecturer A", "lecturer.a@test.cd", user.RoleLecturer)
	lecturerZ := app.createUser(t, "Lecturer Z", "lecturer.z@test.cd", user.RoleLecturer)
	studentB := app.createUser(t, "Student B", "student.b@test.cd", user.RoleStudent)
	studentC := app.createUser(t, "Student C", "student.c@test.cd", user.RoleStudent)

	// admin creates the project
	body := marchallObj(t, map[string]interface{}{
		"name":        "Capstone",
		"description": "Final year project",
		"deadline":    "2025-06-01",
		"supervisor":  lecturerA.ID,
		"students":    []string{studentB.ID},
	})
	req, rec := newAuthRequest(http.MethodPost, "/api/projects", app.getToken(t, admin), body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p project.Detail
	unmarchall(t, rec.Body.Bytes(), &p)

	// a student outside the project cannot upload
	req, rec = newUploadRequest(t, "/api/submissions", app.getToken(t, studentC), p.ID, "proposal", "proposal.pdf", pdfContent(2<<20))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Empty(t, app.uploadedFiles(t))

	// the member uploads a 2MB proposal
	sub := app.upload(t, studentB, p.ID, "proposal.pdf", pdfContent(2<<20))
	assert.Equal(t, "proposal.pdf", sub.OriginalName)
	assert.Len(t, app.uploadedFiles(t), 1)

	// the supervisor sends feedback
	fb := app.sendFeedback(t, lecturerA, sub.ID, "Looks good")
	assert.Equal(t, "Looks good", fb.Message)

	req, rec = newAuthRequest(http.MethodGet, "/api/notifications", app.getToken(t, studentB))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ns []notification.Notification
	unmarchall(t, rec.Body.Bytes(), &ns)
	require.Len(t, ns, 1)
	assert.Equal(t, notification.TypeFeedback, ns[0].Type)
	assert.False(t, ns[0].Read)

	// another lecturer cannot
	req, rec = newAuthRequest(http.MethodPost, "/api/feedback", app.getToken(t, lecturerZ), marchallObj(t, map[string]string{"submissionId": sub.ID, "message": "Meh"}))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	// admin stats
	app.runTests(t, []httpTest{
		{
			name: "stats", path: "/api/admin/stats", token: app.getToken(t, admin), wantCode: http.StatusOK,
			wantData: marchallObj(t, StatsResponse{TotalUsers: 5, TotalProjects: 1, TotalSubmissions: 1, TotalFeedback: 1}),
		},
		{name: "stats admin only", path: "/api/admin/stats", token: app.getToken(t, lecturerA), wantCode: http.StatusForbidden},
	})
}

func Test_server_home(t *testing.T) {
	app := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome to PSMS API!")

	req, rec = newRequest(http.MethodGet, "/metrics")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "psms_http_requests_total")
}
