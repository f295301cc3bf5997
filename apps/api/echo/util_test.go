package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/trezcool/psms/assets"
	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/authz"
	"github.com/trezcool/psms/core/feedback"
	"github.com/trezcool/psms/core/notification"
	"github.com/trezcool/psms/core/project"
	"github.com/trezcool/psms/core/submission"
	"github.com/trezcool/psms/core/user"
	"github.com/trezcool/psms/services/email"
	"github.com/trezcool/psms/services/filestore"
	"github.com/trezcool/psms/services/metrics"
	"github.com/trezcool/psms/services/realtime"
	"github.com/trezcool/psms/storage/database/inmem"
	"github.com/trezcool/psms/testutil"
)

var errMissingToken = httpErr{Error: "access token required"}

// testApp is a Server over in-memory repositories, a temp uploads dir & a console mailer.
type testApp struct {
	*Server
	conf      *core.Config
	uploadDir string

	usrRepo   user.Repository
	projRepo  project.Repository
	subRepo   submission.Repository
	fbRepo    feedback.Repository
	notifRepo notification.Repository

	usrSvc  *user.Service
	projSvc *project.Service
	subSvc  *submission.Service
	fbSvc   *feedback.Service
	mailSvc *emailsvc.ConsoleService
	hub     *realtime.Hub
	metrics *metrics.Metrics
}

// setup builds a testApp; opts may replace repositories before the services are built.
func setup(t *testing.T, opts ...func(*testApp)) *testApp {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Uploads.Dir = t.TempDir()
	logger := testutil.NopLogger{}
	validate, translator := testutil.NewValidator()

	// set up DB & repos
	db := inmemdb.Open()
	app := &testApp{
		conf:      conf,
		uploadDir: conf.Uploads.Dir,
		usrRepo:   inmemdb.NewUserRepository(db),
		projRepo:  inmemdb.NewProjectRepository(db),
		subRepo:   inmemdb.NewSubmissionRepository(db),
		fbRepo:    inmemdb.NewFeedbackRepository(db),
		notifRepo: inmemdb.NewNotificationRepository(db),
		metrics:   metrics.New(),
	}
	for _, opt := range opts {
		opt(app)
	}

	// set up services
	store, err := filestore.NewDiskStore(conf.Uploads.Dir, conf.Uploads.MaxSize)
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	app.hub = realtime.NewHub(app.metrics)
	ctx, cancel := context.WithCancel(context.Background())
	go app.hub.Run(ctx)
	t.Cleanup(cancel)

	tmpls, err := core.ParseEmailTemplates(assets.EmailTemplates(), conf, logger)
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	app.mailSvc = emailsvc.NewConsoleServiceMock(conf, tmpls, logger)
	app.usrSvc = user.NewService(app.usrRepo, app.mailSvc, conf)
	app.projSvc = project.NewService(app.projRepo, app.usrSvc)
	app.subSvc = submission.NewService(app.subRepo, store, app.projSvc, app.usrSvc, conf, logger)
	notifSvc := notification.NewService(app.notifRepo, app.hub, logger)
	app.fbSvc = feedback.NewService(app.fbRepo, app.projSvc, app.subSvc, notifSvc, app.usrSvc, app.mailSvc, logger)

	// set up server
	app.Server = NewServer(ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		Enforcer:        enforcer,
		Hub:             app.hub,
		Metrics:         app.metrics,
		UserSvc:         app.usrSvc,
		ProjectSvc:      app.projSvc,
		SubmissionSvc:   app.subSvc,
		FeedbackSvc:     app.fbSvc,
		NotificationSvc: notifSvc,
	})
	return app
}

func (app *testApp) createUser(t *testing.T, name, email, role string) user.User {
	return testutil.CreateUser(t, app.usrRepo, name, email, role)
}

func (app *testApp) createProject(t *testing.T, name string, creator, supervisor user.User, students ...user.User) project.Project {
	return testutil.CreateProject(t, app.projRepo, name, creator, supervisor, students...)
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(app.conf, GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// uploadedFiles lists the files of the uploads dir.
func (app *testApp) uploadedFiles(t *testing.T) []string {
	entries, err := os.ReadDir(app.uploadDir)
	if err != nil {
		t.Fatalf("uploadedFiles() failed: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest builds a multipart request with the projectId field and a file under fileField.
func newUploadRequest(t *testing.T, path, token, projectID, fileField, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if projectID != "" {
		if err := w.WriteField("projectId", projectID); err != nil {
			t.Fatalf("newUploadRequest() failed: %v", err)
		}
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("newUploadRequest() failed: %v", err)
		}
		if _, err = fw.Write(content); err != nil {
			t.Fatalf("newUploadRequest() failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("newUploadRequest() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

// pdfContent returns a PDF-looking payload of size bytes.
func pdfContent(size int) []byte {
	content := make([]byte, 0, size)
	content = append(content, "%PDF-1.4\n"...)
	for len(content) < size {
		content = append(content, "% filler line of the test document\n"...)
	}
	return content[:size]
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarchall(t *testing.T, data []byte, obj interface{}) {
	if err := json.Unmarshal(data, obj); err != nil {
		t.Fatalf("unmarchall() failed: %v; data %s", err, data)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// runTests serves every httpTest and checks the response code & data.
func (app *testApp) runTests(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func fieldNames(t *testing.T, data []byte) []string {
	var resp validationResponse
	unmarchall(t, data, &resp)
	names := make([]string, 0, len(resp.Fields))
	for _, f := range resp.Fields {
		names = append(names, f.Field)
	}
	return names
}
