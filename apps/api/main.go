package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/psms/apps/api/echo"
	"github.com/trezcool/psms/assets"
	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/authz"
	"github.com/trezcool/psms/core/feedback"
	"github.com/trezcool/psms/core/notification"
	"github.com/trezcool/psms/core/project"
	"github.com/trezcool/psms/core/submission"
	"github.com/trezcool/psms/core/user"
	emailsvc "github.com/trezcool/psms/services/email"
	"github.com/trezcool/psms/services/filestore"
	logsvc "github.com/trezcool/psms/services/logger"
	"github.com/trezcool/psms/services/metrics"
	"github.com/trezcool/psms/services/realtime"
	"github.com/trezcool/psms/storage/database"
	sqlxrepos "github.com/trezcool/psms/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	zl := logsvc.NewZerolog(conf, os.Stdout)
	logger := logsvc.NewRollbarLogger(zl.With().Str("component", "api").Logger(), conf)
	logger.Enable(!conf.Debug)

	if err := conf.Validate(); err != nil {
		logger.Fatal(fmt.Sprintf("invalid configuration: %v", err), err)
	}

	dbLogger := logsvc.NewRollbarLogger(zl.With().Str("component", "db").Logger(), conf)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	tmpls, err := core.ParseEmailTemplates(assets.EmailTemplates(), conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, tmpls, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, tmpls, logger)
	}

	store, err := filestore.NewDiskStore(conf.Uploads.Dir, conf.Uploads.MaxSize)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file store: %v", err), err)
	}
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up authorization: %v", err), err)
	}

	m := metrics.New()
	hub := realtime.NewHub(m)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf)
	projSvc := project.NewService(sqlxrepos.NewProjectRepository(db), usrSvc)
	subSvc := submission.NewService(sqlxrepos.NewSubmissionRepository(db), store, projSvc, usrSvc, conf, logger)
	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(db), hub, logger)
	fbSvc := feedback.NewService(sqlxrepos.NewFeedbackRepository(db), projSvc, subSvc, notifSvc, usrSvc, mailSvc, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	project.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	if conf.Server.DebugHost != "" {
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:            conf,
			Logger:          logger,
			Validate:        validate,
			Translator:      translator,
			Enforcer:        enforcer,
			Hub:             hub,
			Metrics:         m,
			UserSvc:         usrSvc,
			ProjectSvc:      projSvc,
			SubmissionSvc:   subSvc,
			FeedbackSvc:     fbSvc,
			NotificationSvc: notifSvc,
		},
	)

	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address))
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// close live connections first, they do not count as outstanding requests
		stopHub()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
