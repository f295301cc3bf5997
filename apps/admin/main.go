package main

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/trezcool/psms/assets"
	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/user"
	emailsvc "github.com/trezcool/psms/services/email"
	logsvc "github.com/trezcool/psms/services/logger"
	"github.com/trezcool/psms/storage/database"
	sqlxrepos "github.com/trezcool/psms/storage/database/sqlx"
)

var logger zerolog.Logger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewZerolog(conf, os.Stdout).With().Str("component", "admin").Logger()
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(false)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	tmpls, err := core.ParseEmailTemplates(assets.EmailTemplates(), conf, appLogger)
	errAndDie(err)
	mailSvc := emailsvc.NewConsoleService(conf, tmpls, appLogger)

	// start CLI
	cli := commandLine{
		db:         db.DB,
		usrSvc:     user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf),
		validate:   validate,
		translator: translator,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error().Err(err).Msg("command failed")
		}
		_ = db.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal().Err(err).Send()
	}
}
