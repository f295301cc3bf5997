package echoapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/psms/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// strictBinder rejects JSON bodies with unknown fields. Anything else goes to echo.DefaultBinder.
type strictBinder struct {
	echo.DefaultBinder
}

func (b *strictBinder) Bind(i interface{}, ctx echo.Context) error {
	req := ctx.Request()
	isJSON := strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	if !isJSON || req.ContentLength == 0 || req.Method == http.MethodGet || req.Method == http.MethodDelete {
		return b.DefaultBinder.Bind(i, ctx)
	}

	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(i); err != nil {
		if err == io.EOF {
			return nil
		}
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  strings.TrimPrefix(err.Error(), "json: "),
			Internal: err,
		}
	}
	return nil
}
