package http

import (
	"errors"
	"net/http"

	"ContagionRadar/pkg/http/middleware"

	"github.com/labstack/echo/v4"
)

// DataResponse writes the envelope. The transport status is always 200.
func DataResponse(c echo.Context, status int, data interface{}) error {
	c.Set(middleware.OutcomeKey, status)
	return c.JSON(http.StatusOK, APIResponse{Status: status, Message: http.StatusText(status), Data: data})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func CreatedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusCreated, data)
}

// ListResponse wraps rows with their total count.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return SuccessResponse(c, &ListDataResponse{Rows: rows, Total: total})
}

// BadRequestResponse writes validation errors.
func BadRequestResponse(c echo.Context, errs interface{}) error {
	return DataResponse(c, http.StatusBadRequest, errs)
}

// AppErrorResponse writes err as a one-item error list. Anything that is
// not an *AppError is reported as a bare 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError("Something went wrong")
	}
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}
