package bootstrap

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	httpapi "github.com/explorable-research/explorable-backend/internal/api/http"
	"github.com/explorable-research/explorable-backend/internal/api/http/middleware"
	"github.com/explorable-research/explorable-backend/internal/auth"
	authmw "github.com/explorable-research/explorable-backend/internal/auth/middleware"
	explorableshttp "github.com/explorable-research/explorable-backend/internal/explorables/http"
	"github.com/explorable-research/explorable-backend/internal/explorables/mcpserver"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	CORSOrigins []string
	DBPing      httpapi.Pinger
	RedisPing   httpapi.Pinger
	Pipeline    interface {
		explorableshttp.Pipeline
		mcpserver.Pipeline
	}
	Events explorableshttp.Subscriber
	Auth   authmw.Authenticator
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(explorableshttp.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(cors.New(corsConfig(dep.CORSOrigins)))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DBPing, dep.RedisPing)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	api.Use(authmw.AuthMiddleware(dep.Auth))

	projectsGroup := api.Group("/projects")
	explorableshttp.NewHandler(dep.Pipeline, dep.Events).Register(projectsGroup)

	mcpHandler := mcpserver.HTTPHandler(dep.Pipeline, dep.Version, func(req *http.Request) string {
		return auth.UserIDFromContext(req.Context())
	})
	mcpGroup := r.Group("/mcp", authmw.AuthMiddleware(dep.Auth))
	mcpGroup.Any("", gin.WrapH(mcpHandler))

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "X-API-Key", middleware.RequestIDHeader, "Mcp-Session-Id")
	cfg.ExposeHeaders = []string{middleware.RequestIDHeader}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
