package middleware

import (
	"errors"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// maxStack bounds the goroutine stack captured for a recovered panic.
const maxStack = 8 << 10

// Recovery turns a handler panic into a 500 and logs it with the request
// id. http.ErrAbortHandler is re-raised so the server can drop the
// connection as it expects.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if e, ok := r.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(r)
				}

				buf := make([]byte, maxStack)
				buf = buf[:runtime.Stack(buf, false)]
				req := c.Request()
				logger.Error().
					Str("request_id", GetRequestID(c)).
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Interface("panic", r).
					Bytes("stack", buf).
					Msg("handler panicked")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
