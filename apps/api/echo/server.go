package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/authz"
	"github.com/trezcool/psms/core/feedback"
	"github.com/trezcool/psms/core/notification"
	"github.com/trezcool/psms/core/project"
	"github.com/trezcool/psms/core/submission"
	"github.com/trezcool/psms/core/user"
	"github.com/trezcool/psms/services/metrics"
	"github.com/trezcool/psms/services/realtime"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Enforcer   *authz.Enforcer
		Hub        *realtime.Hub
		Metrics    *metrics.Metrics

		UserSvc         *user.Service
		ProjectSvc      *project.Service
		SubmissionSvc   *submission.Service
		FeedbackSvc     *feedback.Service
		NotificationSvc *notification.Service
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		jwt      echo.MiddlewareFunc
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(s.observe)

	s.app.Binder = new(strictBinder)
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))

	s.jwt = middleware.JWTWithConfig(newJWTConfig(conf))
	auth := []echo.MiddlewareFunc{s.jwt, s.authUser}
	limit := rateLimit(conf.Server.RateLimitRequests, conf.Server.RateLimitWindow)

	api := s.app.Group("/api")

	registerUserAPI(api, auth, limit, s.allow, s.deps.UserSvc, conf, s.deps.Logger, s.deps.Validate)
	registerProjectAPI(
		api, auth, s.allow,
		s.deps.ProjectSvc, s.deps.SubmissionSvc, s.deps.FeedbackSvc,
		s.deps.Logger, s.deps.Validate, s.deps.Translator,
	)
	subApi := registerSubmissionAPI(api, auth, s.allow, s.deps.SubmissionSvc, conf, s.deps.Metrics, s.deps.Validate)
	registerFeedbackAPI(api, auth, s.allow, s.deps.FeedbackSvc, s.deps.Metrics, s.deps.Validate)
	registerNotificationAPI(api, auth, s.allow, s.deps.NotificationSvc, s.deps.Hub, s.newUpgrader(), s.deps.Logger)
	registerAdminAPI(
		api, auth, s.allow,
		s.deps.UserSvc, s.deps.ProjectSvc, s.deps.SubmissionSvc, s.deps.FeedbackSvc,
	)

	// stored files, read-only
	s.app.GET(submission.URLPrefix+":filename", subApi.serveUpload, auth...)
}

func (s *Server) newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(s.deps.Conf.FrontendBaseURL),
	}
}

// Start listens on the configured address. It also relays SIGINT & SIGTERM to ShutdownSignal.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors receives the fatal listener error, if any.
func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to PSMS API!")
}
