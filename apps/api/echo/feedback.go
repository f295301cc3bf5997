package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/psms/core/authz"
	"github.com/trezcool/psms/core/feedback"
	"github.com/trezcool/psms/services/metrics"
)

type feedbackApi struct {
	svc      *feedback.Service
	metrics  *metrics.Metrics
	validate *validator.Validate
}

func registerFeedbackAPI(
	g *echo.Group,
	auth []echo.MiddlewareFunc,
	allow policyFunc,
	svc *feedback.Service,
	m *metrics.Metrics,
	validate *validator.Validate,
) {
	api := feedbackApi{
		svc:      svc,
		metrics:  m,
		validate: validate,
	}

	fg := g.Group("/feedback", auth...)
	fg.POST("", api.create, allow(authz.ObjFeedback, authz.ActCreate))
	fg.GET("/project/:id", api.queryByProject, allow(authz.ObjFeedback, authz.ActRead))
	fg.GET("/project/:id/student/:studentId", api.queryByProject, allow(authz.ObjFeedback, authz.ActRead))
}

// Handlers

func (api *feedbackApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data feedback.NewFeedback
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeedback")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	fb, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating feedback")
	}
	api.metrics.FeedbackSent.Inc()

	details, err := api.svc.Details(ctx.Request().Context(), fb)
	if err != nil {
		return errors.Wrap(err, "expanding feedback")
	}
	return ctx.JSON(http.StatusCreated, details[0])
}

// queryByProject lists the feedback of a project, optionally for a single student (`studentId` param).
func (api *feedbackApi) queryByProject(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	fbs, err := api.svc.List(ctx.Request().Context(), usr, ctx.Param("id"), ctx.Param("studentId"))
	if err != nil {
		return errors.Wrap(err, "querying feedback")
	}
	details, err := api.svc.Details(ctx.Request().Context(), fbs...)
	if err != nil {
		return errors.Wrap(err, "expanding feedback")
	}
	return ctx.JSON(http.StatusOK, details)
}
