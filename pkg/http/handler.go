package http

import "github.com/labstack/echo/v4"

// Handler registers a group of routes, such as the contagion API, on the shared server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
