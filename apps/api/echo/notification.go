package echoapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/psms/core"
	"github.com/trezcool/psms/core/authz"
	"github.com/trezcool/psms/core/notification"
	"github.com/trezcool/psms/services/realtime"
)

type notificationApi struct {
	svc      *notification.Service
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   core.Logger
}

func registerNotificationAPI(
	g *echo.Group,
	auth []echo.MiddlewareFunc,
	allow policyFunc,
	svc *notification.Service,
	hub *realtime.Hub,
	upgrader websocket.Upgrader,
	logger core.Logger,
) {
	api := notificationApi{
		svc:      svc,
		hub:      hub,
		upgrader: upgrader,
		logger:   logger,
	}

	ng := g.Group("/notifications")
	ng.GET("/ws", api.connect, append([]echo.MiddlewareFunc{tokenFromQuery("token")}, auth...)...)

	ag := ng.Group("", auth...)
	ag.GET("", api.query, allow(authz.ObjNotifications, authz.ActRead))
	ag.GET("/unread-count", api.unreadCount, allow(authz.ObjNotifications, authz.ActRead))
	ag.PUT("/read-all", api.markAllRead, allow(authz.ObjNotifications, authz.ActUpdate))
	ag.PUT("/:id/read", api.markRead, allow(authz.ObjNotifications, authz.ActUpdate))
}

// Handlers

func (api *notificationApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	ns, err := api.svc.List(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	if ns == nil {
		ns = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, ns)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	cnt, err := api.svc.UnreadCount(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: cnt})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkRead(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	cnt, err := api.svc.MarkAllRead(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, UpdatedResponse{Updated: cnt})
}

// connect upgrades the request to a websocket that receives the user's notifications.
func (api *notificationApi) connect(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader already replied
		api.logger.Debug("websocket upgrade failed", err, usr)
		return nil
	}
	c := realtime.NewClient(api.hub, conn, usr.ID, api.logger)
	if !api.hub.Register(c) {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
		return nil
	}
	c.Start()
	return nil
}

// checkOrigin allows same-host origins and the frontend origin.
func checkOrigin(frontendBaseURL string) func(r *http.Request) bool {
	var frontendHost string
	if u, err := url.Parse(frontendBaseURL); err == nil {
		frontendHost = u.Host
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host) || (frontendHost != "" && strings.EqualFold(u.Host, frontendHost))
	}
}

type (
	CountResponse struct {
		Count int `json:"count"`
	}

	UpdatedResponse struct {
		Updated int `json:"updated"`
	}
)
