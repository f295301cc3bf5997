package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/authz"
	"github.com/trezcool/psms/core/feedback"
	"github.com/trezcool/psms/core/project"
	"github.com/trezcool/psms/core/submission"
)

type projectApi struct {
	svc        *project.Service
	subSvc     *submission.Service
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
}

func registerProjectAPI(
	g *echo.Group,
	auth []echo.MiddlewareFunc,
	allow policyFunc,
	svc *project.Service,
	subSvc *submission.Service,
	fbSvc *feedback.Service,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := projectApi{
		svc:        svc,
		subSvc:     subSvc,
		logger:     logger,
		validate:   validate,
		translator: translator,
	}
	fbApi := feedbackApi{svc: fbSvc}

	pg := g.Group("/projects", auth...)
	pg.GET("", api.query, allow(authz.ObjProjects, authz.ActRead))
	pg.POST("", api.create, allow(authz.ObjProjects, authz.ActCreate))

	// detail endpoints
	pg.GET("/:id", api.retrieve, allow(authz.ObjProjects, authz.ActRead))
	pg.PUT("/:id", api.update, allow(authz.ObjProjects, authz.ActUpdate))
	pg.PUT("/:id/status", api.updateStatus, allow(authz.ObjProjects, authz.ActUpdateStatus))
	pg.DELETE("/:id", api.destroy, allow(authz.ObjProjects, authz.ActDelete))
	pg.GET("/:id/feedback", fbApi.queryByProject, allow(authz.ObjFeedback, authz.ActRead))
}

// Handlers

func (api *projectApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	projects, err := api.svc.Query(ctx.Request().Context(), usr, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying projects")
	}
	details, err := api.svc.Details(ctx.Request().Context(), projects...)
	if err != nil {
		return errors.Wrap(err, "expanding projects")
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api *projectApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data project.NewProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProject")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.translator, api.svc); err != nil {
		return err
	}

	p, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating project")
	}
	return api.respond(ctx, http.StatusCreated, p)
}

func (api *projectApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting project")
	}
	return api.respond(ctx, http.StatusOK, p)
}

func (api *projectApi) update(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data project.UpdateProject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProject")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.translator, api.svc); err != nil {
		return err
	}

	p, err := api.svc.Update(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating project")
	}
	return api.respond(ctx, http.StatusOK, p)
}

func (api *projectApi) updateStatus(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data project.UpdateStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.UpdateStatus(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating project status")
	}
	return api.respond(ctx, http.StatusOK, p)
}

// destroy deletes the project with its submissions & feedback, then removes the stored files.
func (api *projectApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	id := ctx.Param("id")

	subs, err := api.subSvc.List(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "listing project submissions")
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, id); err != nil {
		return errors.Wrap(err, "deleting project")
	}
	if err = api.subSvc.RemoveFiles(subs...); err != nil {
		api.logger.Warn("removing project files", err, usr)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *projectApi) respond(ctx echo.Context, code int, p project.Project) error {
	detail, err := api.svc.Detail(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "expanding project")
	}
	return ctx.JSON(code, detail)
}
