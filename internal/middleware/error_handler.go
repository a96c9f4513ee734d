package middleware

import (
	"net/http"

	"evoloop/pkg/logger"

	jsonres "evoloop/pkg/response"

	"github.com/labstack/echo/v4"
)

// ErrorHandler is the catch-all Echo error handler: echo.HTTPError keeps its
// status, anything else becomes a logged 500 envelope.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Internal server error"

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	}

	if code >= http.StatusInternalServerError {
		logger.Error("unhandled request error",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}

	if err := c.JSON(code, jsonres.Error("ERROR", message, nil)); err != nil {
		logger.Error("failed to write error response", "error", err)
	}
}
