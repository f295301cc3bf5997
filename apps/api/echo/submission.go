package echoapi

import (
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/authz"
	"github.com/trezcool/psms/core/submission"
	"github.com/trezcool/psms/services/metrics"
)

// file form fields, in order of precedence
var uploadFields = []string{"proposal", "file"}

type submissionApi struct {
	svc      *submission.Service
	metrics  *metrics.Metrics
	validate *validator.Validate
}

func registerSubmissionAPI(
	g *echo.Group,
	auth []echo.MiddlewareFunc,
	allow policyFunc,
	svc *submission.Service,
	conf *core.Config,
	m *metrics.Metrics,
	validate *validator.Validate,
) *submissionApi {
	api := &submissionApi{
		svc:      svc,
		metrics:  m,
		validate: validate,
	}
	// leave room for the multipart envelope, the store enforces the real limit
	bodyLimit := middleware.BodyLimit(fmt.Sprintf("%dK", conf.Uploads.MaxSize>>10+1024))

	sg := g.Group("/submissions", auth...)
	sg.POST("", api.create, allow(authz.ObjSubmissions, authz.ActCreate), bodyLimit)
	sg.GET("/project/:id", api.queryByProject, allow(authz.ObjSubmissions, authz.ActRead))
	sg.GET("/download/:id", api.download, allow(authz.ObjSubmissions, authz.ActRead))
	sg.PUT("/:id/status", api.updateStatus, allow(authz.ObjSubmissions, authz.ActUpdateStatus))
	return api
}

// Handlers

func (api *submissionApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	up := submission.Upload{ProjectID: ctx.FormValue("projectId")}
	fh, err := formFile(ctx)
	if err != nil {
		return errors.Wrap(err, "reading uploaded file")
	}
	if fh != nil {
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening uploaded file")
		}
		defer f.Close()
		up.OriginalName = fh.Filename
		up.Size = fh.Size
		up.Content = f
	}

	s, err := api.svc.Create(ctx.Request().Context(), usr, up)
	if err != nil {
		return errors.Wrap(err, "creating submission")
	}
	api.metrics.SubmissionsUploaded.Inc()

	details, err := api.svc.Details(ctx.Request().Context(), s)
	if err != nil {
		return errors.Wrap(err, "expanding submission")
	}
	return ctx.JSON(http.StatusCreated, details[0])
}

// formFile returns the first uploaded file of uploadFields, or nil if there is none.
func formFile(ctx echo.Context) (*multipart.FileHeader, error) {
	for _, field := range uploadFields {
		fh, err := ctx.FormFile(field)
		switch err {
		case nil:
			return fh, nil
		case http.ErrMissingFile, http.ErrNotMultipart:
			continue
		default:
			return nil, err
		}
	}
	return nil, nil
}

func (api *submissionApi) queryByProject(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	subs, err := api.svc.List(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	details, err := api.svc.Details(ctx.Request().Context(), subs...)
	if err != nil {
		return errors.Wrap(err, "expanding submissions")
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api *submissionApi) download(ctx echo.Context) error {
	return api.serveFile(ctx, submission.GetFilter{ID: ctx.Param("id")}, "attachment")
}

// serveUpload serves a stored file by name, with the download access rule.
func (api *submissionApi) serveUpload(ctx echo.Context) error {
	return api.serveFile(ctx, submission.GetFilter{Filename: ctx.Param("filename")}, "inline")
}

func (api *submissionApi) serveFile(ctx echo.Context, filter submission.GetFilter, disposition string) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	s, f, err := api.svc.Open(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "opening submission file")
	}
	defer f.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, contentDisposition(disposition, s.OriginalName))
	return ctx.Stream(http.StatusOK, contentType(s), f)
}

// contentDisposition falls back to RFC 2231 encoding for non-ASCII names.
func contentDisposition(disposition, filename string) string {
	if v := mime.FormatMediaType(disposition, map[string]string{"filename": filename}); v != "" {
		return v
	}
	return disposition
}

func contentType(s submission.Submission) string {
	if s.ContentType == "" {
		return echo.MIMEOctetStream
	}
	return s.ContentType
}

func (api *submissionApi) updateStatus(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data submission.UpdateStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	data.Status = core.CleanString(data.Status, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	s, err := api.svc.UpdateStatus(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating submission status")
	}
	return ctx.JSON(http.StatusOK, s)
}
