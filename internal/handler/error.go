// Package handler holds the HTTP error mapping shared by every echo handler.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dukerupert/mesa/internal/domain"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.EMETHOD:
		return http.StatusMethodNotAllowed // 405
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge // 413
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// ErrorResponse logs err and writes it as JSON. Internal and integrity
// errors are logged in full but answered with a generic message.
func ErrorResponse(c echo.Context, err error) error {
	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)

	logger := zerolog.Ctx(c.Request().Context())
	evt := logger.Info()
	if status >= 500 {
		evt = logger.Error()
	}
	evt.Err(err).
		Str("code", code).
		Str("op", domain.ErrorOp(err)).
		Int("status", status).
		Msg("request failed")

	var body errorBody
	body.Error.Code = code
	body.Error.Message = domain.ErrorMessage(err)
	return c.JSON(status, body)
}

// HTTPErrorHandler is installed as echo's error handler so routing failures
// and errors returned from handlers share one response shape.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		var de *domain.Error
		if !errors.As(err, &de) {
			err = domain.Errorf(httpStatusToCode(he.Code), "", "%s", http.StatusText(he.Code))
		}
	}
	if rerr := ErrorResponse(c, err); rerr != nil {
		c.Logger().Error(rerr)
	}
}

func httpStatusToCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return domain.EINVALID
	case http.StatusUnauthorized:
		return domain.EUNAUTHORIZED
	case http.StatusNotFound:
		return domain.ENOTFOUND
	case http.StatusMethodNotAllowed:
		return domain.EMETHOD
	case http.StatusConflict:
		return domain.ECONFLICT
	case http.StatusRequestEntityTooLarge:
		return domain.ETOOLARGE
	case http.StatusServiceUnavailable:
		return domain.EUNAVAILABLE
	default:
		return domain.EINTERNAL
	}
}
