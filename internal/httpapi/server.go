// Package httpapi is the HTTP surface: the client-facing OpenAI-compatible
// routes and the admin-facing operational routes, wired onto a gin engine
// with cors/gzip middleware and versioned route groups.
package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/llmweaver/gateway/internal/channelstore"
	"github.com/llmweaver/gateway/internal/loadbalancer"
	"github.com/llmweaver/gateway/internal/pipeline"
)

// Server bundles the gin engine with the collaborators its handlers call.
type Server struct {
	Engine *gin.Engine

	pipeline *pipeline.Pipeline
	lb       *loadbalancer.LoadBalancer
	channels *channelstore.Store
	catalog  channelstore.ModelCatalog
	admin    AdminAuthenticator
}

// AdminAuthenticator authenticates the separate admin caller identity
// required for the admin-facing surface.
type AdminAuthenticator interface {
	AuthenticateAdmin(rawToken string) bool
}

// New builds the HTTP surface. debug selects gin's debug/release mode.
func New(p *pipeline.Pipeline, lb *loadbalancer.LoadBalancer, channels *channelstore.Store, catalog channelstore.ModelCatalog, admin AdminAuthenticator, debug bool) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "X-LB-Strategy"},
		MaxAge:          12 * time.Hour,
	}))
	engine.Use(gzip.Gzip(gzip.DefaultCompression))
	engine.Use(requestIDMiddleware())

	s := &Server{
		Engine:   engine,
		pipeline: p,
		lb:       lb,
		channels: channels,
		catalog:  catalog,
		admin:    admin,
	}
	s.registerClientRoutes()
	s.registerAdminRoutes()
	return s
}
