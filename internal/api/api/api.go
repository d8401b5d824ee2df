package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"slotbot/cmd/middleware"
	"slotbot/internal/service"
)

type Routers struct {
	Service service.Service
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	apiGroup := app.Group("/v1")

	apiGroup.POST("/events", r.Service.CreateEvent)
	apiGroup.GET("/events", r.Service.ListEvents)
	apiGroup.GET("/events/:id", r.Service.GetEvent)
	apiGroup.POST("/events/:id/state", r.Service.SetEventState)
	apiGroup.POST("/events/:id/limits", r.Service.UpdateLimits)
	apiGroup.DELETE("/events/:id", r.Service.DeleteEvent)

	apiGroup.POST("/events/:id/signup", r.Service.SignUp)
	apiGroup.POST("/events/:id/cancel", r.Service.Cancel)
	apiGroup.POST("/events/:id/withdraw", r.Service.Withdraw)

	apiGroup.PUT("/events/:id/attachment", r.Service.SetAttachment)
	apiGroup.GET("/events/:id/attachment", r.Service.GetAttachment)

	apiGroup.POST("/blacklist", r.Service.Ban)
	apiGroup.DELETE("/blacklist/:userID", r.Service.Unban)
	apiGroup.GET("/blacklist", r.Service.ListBlacklist)

	return app
}
