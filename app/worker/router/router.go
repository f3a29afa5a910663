package router

import (
	"fieldDispatch/internal/middleware"
	"fieldDispatch/internal/rest"

	"github.com/labstack/echo/v4"
)

func SetupEventRoutes(api *echo.Group, handler *rest.EventsHandler) {
	events := api.Group("/events", middleware.AuthMiddleware())
	events.POST("", handler.Publish)

	api.GET("/deadletters", handler.DeadLetters, middleware.AuthMiddleware(), middleware.AdminOnly())
}

func SetupTicketRoutes(api *echo.Group, handler *rest.TicketsHandler) {
	tickets := api.Group("/tickets", middleware.AuthMiddleware())

	tickets.GET("", handler.List)
	tickets.GET("/:id", handler.GetByID)
	tickets.POST("", handler.Create, middleware.AdminOnly())
}

func SetupTechnicianRoutes(api *echo.Group, handler *rest.TechniciansHandler) {
	technicians := api.Group("/technicians", middleware.AuthMiddleware())

	technicians.GET("/:id", handler.Get)
	technicians.PUT("/:id/style", handler.SetStyle, middleware.AdminOnly())
}

func SetupFeedbackRoutes(api *echo.Group, handler *rest.FeedbackHandler) {
	api.POST("/feedback", handler.Feedback, middleware.AuthMiddleware())

	bandit := api.Group("/bandit", middleware.AuthMiddleware())
	bandit.GET("/stats", handler.Stats, middleware.AdminOnly())
}
