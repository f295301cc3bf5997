package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/psms/core/project"
	"github.com/trezcool/psms/core/user"
)

const unknownID = "c0ffee00-0000-4000-8000-000000000000"

func projectIDs(t *testing.T, data []byte) []string {
	var details []project.Detail
	unmarchall(t, data, &details)
	ids := make([]string, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.ID)
	}
	return ids
}

func (app *testApp) projectDetail(t *testing.T, p project.Project) []byte {
	detail, err := app.projSvc.Detail(context.Background(), p)
	require.NoError(t, err)
	return marchallObj(t, detail)
}

func Test_projectApi_create(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	lecturer := app.createUser(t, "Lecturer", "lecturer@test.cd", user.RoleLecturer)
	student := app.createUser(t, "Student", "student@test.cd", user.RoleStudent)
	adminToken := app.getToken(t, admin)

	t.Run("admin required", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"name": "Mine", "description": "Mine", "deadline": "2030-01-01",
			"supervisor": lecturer.ID, "students": []string{student.ID},
		})
		for _, usr := range []user.User{lecturer, student} {
			req, rec := newAuthRequest(http.MethodPost, "/api/projects", app.getToken(t, usr), body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "insufficient permissions"})}, rec)
		}
	})

	t.Run("all errors reported", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"name": " ", "description": "", "deadline": "next week",
			"supervisor": student.ID, "students": []string{lecturer.ID, unknownID},
		})
		req, rec := newAuthRequest(http.MethodPost, "/api/projects", adminToken, body)
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.ElementsMatch(
			t,
			[]string{"name", "description", "deadline", "supervisor", "students[0]", "students[1]"},
			fieldNames(t, rec.Body.Bytes()),
		)

		cnt, err := app.projSvc.Count(context.Background())
		require.NoError(t, err)
		assert.Zero(t, cnt)
	})

	t.Run("duplicate students", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"name": "Dup", "description": "Dup", "deadline": "2030-01-01",
			"supervisor": lecturer.ID, "students": []string{student.ID, student.ID},
		})
		req, rec := newAuthRequest(http.MethodPost, "/api/projects", adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.Equal(t, []string{"students"}, fieldNames(t, rec.Body.Bytes()))
	})

	t.Run("ok", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"name": " Capstone ", "description": "Final year project", "deadline": "2025-06-01",
			"supervisor": lecturer.ID, "students": []string{student.ID},
		})
		req, rec := newAuthRequest(http.MethodPost, "/api/projects", adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var detail project.Detail
		unmarchall(t, rec.Body.Bytes(), &detail)
		assert.Equal(t, "Capstone", detail.Name)
		assert.Equal(t, project.StatusPending, detail.Status)
		assert.Equal(t, "2025-06-01", detail.Deadline.Format("2006-01-02"))
		require.NotNil(t, detail.Supervisor)
		assert.Equal(t, lecturer.Summary(), *detail.Supervisor)
		assert.Equal(t, []user.Summary{student.Summary()}, detail.Students)
		require.NotNil(t, detail.CreatedBy)
		assert.Equal(t, admin.ID, detail.CreatedBy.ID)
	})
}

func Test_projectApi_query(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	lecA := app.createUser(t, "Lecturer A", "leca@test.cd", user.RoleLecturer)
	lecB := app.createUser(t, "Lecturer B", "lecb@test.cd", user.RoleLecturer)
	stuA := app.createUser(t, "Student A", "stua@test.cd", user.RoleStudent)
	stuB := app.createUser(t, "Student B", "stub@test.cd", user.RoleStudent)
	loner := app.createUser(t, "Loner", "loner@test.cd", user.RoleStudent)

	alpha := app.createProject(t, "Alpha", admin, lecA, stuA)
	beta := app.createProject(t, "Beta", admin, lecB, stuA, stuB)

	tests := []struct {
		name    string
		usr     user.User
		path    string
		wantIDs []string
	}{
		{name: "admin sees all", usr: admin, path: "/api/projects", wantIDs: []string{alpha.ID, beta.ID}},
		{name: "lecturer sees supervised", usr: lecA, path: "/api/projects", wantIDs: []string{alpha.ID}},
		{name: "student sees memberships", usr: stuA, path: "/api/projects", wantIDs: []string{alpha.ID, beta.ID}},
		{name: "other student", usr: stuB, path: "/api/projects", wantIDs: []string{beta.ID}},
		{name: "no project", usr: loner, path: "/api/projects", wantIDs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, app.getToken(t, tt.usr))
			app.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.ElementsMatch(t, tt.wantIDs, projectIDs(t, rec.Body.Bytes()))
		})
	}

	t.Run("empty list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/projects", app.getToken(t, loner))
		app.ServeHTTP(rec, req)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("ordering", func(t *testing.T) {
		token := app.getToken(t, admin)
		req, rec := newAuthRequest(http.MethodGet, "/api/projects?ordering=name", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{alpha.ID, beta.ID}, projectIDs(t, rec.Body.Bytes()))

		req, rec = newAuthRequest(http.MethodGet, "/api/projects?ordering=-name", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{beta.ID, alpha.ID}, projectIDs(t, rec.Body.Bytes()))
	})
}

func Test_projectApi_retrieve(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	lecturer := app.createUser(t, "Lecturer", "lecturer@test.cd", user.RoleLecturer)
	other := app.createUser(t, "Other Lecturer", "other@test.cd", user.RoleLecturer)
	student := app.createUser(t, "Student", "student@test.cd", user.RoleStudent)
	outsider := app.createUser(t, "Outsider", "outsider@test.cd", user.RoleStudent)
	p := app.createProject(t, "Capstone", admin, lecturer, student)

	path := "/api/projects/" + p.ID
	noAccess := marchallObj(t, httpErr{Error: "you do not have access to this project"})

	tests := []httpTest{
		{name: "auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "not found", path: "/api/projects/" + unknownID, token: app.getToken(t, admin), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "project not found"})},
		{name: "outsider student", path: path, token: app.getToken(t, outsider), wantCode: http.StatusForbidden, wantData: noAccess},
		{name: "other lecturer", path: path, token: app.getToken(t, other), wantCode: http.StatusForbidden, wantData: noAccess},
		{name: "admin", path: path, token: app.getToken(t, admin), wantCode: http.StatusOK, wantData: app.projectDetail(t, p)},
		{name: "supervisor", path: path, token: app.getToken(t, lecturer), wantCode: http.StatusOK, wantData: app.projectDetail(t, p)},
		{name: "member", path: path, token: app.getToken(t, student), wantCode: http.StatusOK, wantData: app.projectDetail(t, p)},
	}
	app.runTests(t, tests)
}

func Test_projectApi_update(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	lecturer := app.createUser(t, "Lecturer", "lecturer@test.cd", user.RoleLecturer)
	other := app.createUser(t, "Other Lecturer", "other@test.cd", user.RoleLecturer)
	stuA := app.createUser(t, "Student A", "stua@test.cd", user.RoleStudent)
	stuB := app.createUser(t, "Student B", "stub@test.cd", user.RoleStudent)
	p := app.createProject(t, "Capstone", admin, lecturer, stuA)

	path := "/api/projects/" + p.ID
	lecToken := app.getToken(t, lecturer)

	tests := []httpTest{
		{
			name: "student denied", method: http.MethodPut, path: path, token: app.getToken(t, stuA),
			body: []byte(`{"status":"approved"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "insufficient permissions"}),
		},
		{
			name: "other lecturer", method: http.MethodPut, path: path, token: app.getToken(t, other),
			body: []byte(`{"status":"approved"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "you do not have access to this project"}),
		},
		{
			name: "supervisor cannot rename", method: http.MethodPut, path: path, token: lecToken,
			body: []byte(`{"name":"Renamed","status":"approved"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "supervisors can only update the project status"}),
		},
		{
			name: "invalid status", method: http.MethodPut, path: path, token: lecToken,
			body: []byte(`{"status":"done"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "not found", method: http.MethodPut, path: "/api/projects/" + unknownID, token: app.getToken(t, admin),
			body: []byte(`{"name":"Renamed"}`), wantCode: http.StatusNotFound,
		},
	}
	app.runTests(t, tests)

	t.Run("supervisor sets status", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, lecToken, []byte(`{"status":" Approved "}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var detail project.Detail
		unmarchall(t, rec.Body.Bytes(), &detail)
		assert.Equal(t, project.StatusApproved, detail.Status)
		assert.Equal(t, "Capstone", detail.Name)
	})

	t.Run("admin changes anything", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"name": "Capstone II", "deadline": "2031-12-31", "supervisor": other.ID, "students": []string{stuA.ID, stuB.ID},
		})
		req, rec := newAuthRequest(http.MethodPut, path, app.getToken(t, admin), body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var detail project.Detail
		unmarchall(t, rec.Body.Bytes(), &detail)
		assert.Equal(t, "Capstone II", detail.Name)
		assert.Equal(t, "Capstone description", detail.Description)
		assert.Equal(t, "2031-12-31", detail.Deadline.Format("2006-01-02"))
		assert.Equal(t, other.ID, detail.Supervisor.ID)
		assert.Equal(t, []user.Summary{stuA.Summary(), stuB.Summary()}, detail.Students)
		assert.Equal(t, project.StatusApproved, detail.Status)
	})

	t.Run("admin cannot assign a student as supervisor", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"supervisor": stuB.ID})
		req, rec := newAuthRequest(http.MethodPut, path, app.getToken(t, admin), body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.Equal(t, []string{"supervisor"}, fieldNames(t, rec.Body.Bytes()))
	})
}

func Test_projectApi_updateStatus(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	lecturer := app.createUser(t, "Lecturer", "lecturer@test.cd", user.RoleLecturer)
	student := app.createUser(t, "Student", "student@test.cd", user.RoleStudent)
	p := app.createProject(t, "Capstone", admin, lecturer, student)

	path := "/api/projects/" + p.ID + "/status"

	tests := []httpTest{
		{name: "student denied", method: http.MethodPut, path: path, token: app.getToken(t, student), body: []byte(`{"status":"approved"}`), wantCode: http.StatusForbidden},
		{name: "status required", method: http.MethodPut, path: path, token: app.getToken(t, lecturer), body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "unknown status", method: http.MethodPut, path: path, token: app.getToken(t, lecturer), body: []byte(`{"status":"archived"}`), wantCode: http.StatusBadRequest},
	}
	app.runTests(t, tests)

	for _, tc := range []struct {
		usr    user.User
		status string
	}{
		{usr: lecturer, status: project.StatusApproved},
		{usr: admin, status: project.StatusCompleted},
	} {
		t.Run(tc.usr.Role, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, path, app.getToken(t, tc.usr), marchallObj(t, project.UpdateStatus{Status: tc.status}))
			app.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			stored, err := app.projRepo.GetProject(context.Background(), p.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.status, stored.Status)
		})
	}
}

func Test_projectApi_destroy(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin)
	lecturer := app.createUser(t, "Lecturer", "lecturer@test.cd", user.RoleLecturer)
	student := app.createUser(t, "Student", "student@test.cd", user.RoleStudent)
	p := app.createProject(t, "Capstone", admin, lecturer, student)
	keep := app.createProject(t, "Keep", admin, lecturer, student)

	// one submission with feedback on each project
	for _, proj := range []project.Project{p, keep} {
		req, rec := newUploadRequest(t, "/api/submissions", app.getToken(t, student), proj.ID, "proposal", "proposal.pdf", pdfContent(1024))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var sub struct {
			ID string `json:"id"`
		}
		unmarchall(t, rec.Body.Bytes(), &sub)
		req, rec = newAuthRequest(http.MethodPost, "/api/feedback", app.getToken(t, lecturer), marchallObj(t, map[string]string{"submissionId": sub.ID, "message": "ok"}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	require.Len(t, app.uploadedFiles(t), 2)

	path := "/api/projects/" + p.ID

	tests := []httpTest{
		{name: "lecturer denied", method: http.MethodDelete, path: path, token: app.getToken(t, lecturer), wantCode: http.StatusForbidden},
		{name: "not found", method: http.MethodDelete, path: "/api/projects/" + unknownID, token: app.getToken(t, admin), wantCode: http.StatusNotFound},
		{name: "ok", method: http.MethodDelete, path: path, token: app.getToken(t, admin), wantCode: http.StatusNoContent},
		{name: "gone", path: path, token: app.getToken(t, admin), wantCode: http.StatusNotFound},
	}
	app.runTests(t, tests)

	ctx := context.Background()
	subs, err := app.subSvc.List(ctx, admin, keep.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, []string{subs[0].Filename}, app.uploadedFiles(t))

	cnt, err := app.subSvc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)
	cnt, err = app.fbSvc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	// notifications outlive the project
	cnt, err = app.notifRepo.CountUnread(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)
}
