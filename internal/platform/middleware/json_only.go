package middleware

import (
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/mockserver/internal/platform/apierror"
)

// RequireJSON rejects POST/PUT/PATCH/DELETE requests that carry a body in
// anything but a JSON media type (application/json or a +json suffix).
// Requests with neither a body nor a Content-Type pass through.
func RequireJSON() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				return next(c)
			}
			ct := req.Header.Get(echo.HeaderContentType)
			if req.ContentLength == 0 && ct == "" {
				return next(c)
			}
			if !isJSON(ct) {
				return apierror.UnsupportedMediaType("request body must be application/json")
			}
			return next(c)
		}
	}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if mt == echo.MIMEApplicationJSON {
		return true
	}
	return len(mt) > 5 && mt[len(mt)-5:] == "+json"
}
