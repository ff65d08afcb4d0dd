package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is an HTTP-shaped application error. Handlers attach it with c.Error and
// ErrorMiddleware renders it.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func New(status int, code, message string, err error) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

func Validation(message string) *Error {
	return New(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message, nil)
}

func Unavailable(message string, err error) *Error {
	return New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, err)
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, "INTERNAL", "Internal server error", err)
}

// ErrorMiddleware renders the last error attached to the context. Errors that are
// not *Error become a 500 without leaking their text.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		var appErr *Error
		if !stderrors.As(err, &appErr) {
			appErr = Internal(err)
		}
		c.AbortWithStatusJSON(appErr.Status, appErr)
	}
}
