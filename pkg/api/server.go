// Package api exposes the conversational endpoints over HTTP. The transport
// is deliberately thin: handlers translate JSON to flow state, hand off to
// the agent, and map service errors to status codes.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/fleetops/movi/pkg/agent"
	"github.com/fleetops/movi/pkg/database"
	"github.com/fleetops/movi/pkg/services"
)

// Server wires the agent and its collaborators into gin handlers.
type Server struct {
	agent    *agent.Agent
	sessions *services.SessionService
	db       *database.Client
}

// NewServer creates a new API server.
func NewServer(ag *agent.Agent, sessions *services.SessionService, db *database.Client) *Server {
	return &Server{
		agent:    ag,
		sessions: sessions,
		db:       db,
	}
}

// Handler builds the gin engine with all routes and middleware attached.
func (s *Server) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", s.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/agent/message", s.HandleMessage)
		v1.POST("/agent/confirm", s.HandleConfirm)
		v1.GET("/agent/sessions/:id", s.GetSession)
	}

	return router
}
