package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/psms/core/authz"
	"github.com/trezcool/psms/core/feedback"
	"github.com/trezcool/psms/core/project"
	"github.com/trezcool/psms/core/submission"
	"github.com/trezcool/psms/core/user"
)

type adminApi struct {
	usrSvc  *user.Service
	projSvc *project.Service
	subSvc  *submission.Service
	fbSvc   *feedback.Service
}

func registerAdminAPI(
	g *echo.Group,
	auth []echo.MiddlewareFunc,
	allow policyFunc,
	usrSvc *user.Service,
	projSvc *project.Service,
	subSvc *submission.Service,
	fbSvc *feedback.Service,
) {
	api := adminApi{
		usrSvc:  usrSvc,
		projSvc: projSvc,
		subSvc:  subSvc,
		fbSvc:   fbSvc,
	}

	ag := g.Group("/admin", auth...)
	ag.GET("/stats", api.stats, allow(authz.ObjStats, authz.ActRead))
}

type StatsResponse struct {
	TotalUsers       int `json:"totalUsers"`
	TotalProjects    int `json:"totalProjects"`
	TotalSubmissions int `json:"totalSubmissions"`
	TotalFeedback    int `json:"totalFeedback"`
}

func (api *adminApi) stats(ctx echo.Context) error {
	var (
		stats StatsResponse
		err   error
	)
	reqCtx := ctx.Request().Context()

	if stats.TotalUsers, err = api.usrSvc.Count(reqCtx); err != nil {
		return errors.Wrap(err, "counting users")
	}
	if stats.TotalProjects, err = api.projSvc.Count(reqCtx); err != nil {
		return errors.Wrap(err, "counting projects")
	}
	if stats.TotalSubmissions, err = api.subSvc.Count(reqCtx); err != nil {
		return errors.Wrap(err, "counting submissions")
	}
	if stats.TotalFeedback, err = api.fbSvc.Count(reqCtx); err != nil {
		return errors.Wrap(err, "counting feedback")
	}
	return ctx.JSON(http.StatusOK, stats)
}
