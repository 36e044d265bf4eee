package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/explorables/service"
)

// Pipeline is the project service behind the REST API.
type Pipeline interface {
	CreateAsync(ctx context.Context, req service.CreateRequest) (*domain.Project, error)
	CreateSync(ctx context.Context, req service.CreateRequest) (*domain.Project, error)
	ContinueAsync(ctx context.Context, req service.ContinueRequest) (*domain.Project, error)
	ContinueSync(ctx context.Context, req service.ContinueRequest) (*domain.Project, error)
	Status(ctx context.Context, userID, id string) (*domain.StatusRecord, error)
	List(ctx context.Context, userID string, limit, offset int) ([]domain.StatusRecord, error)
	Delete(ctx context.Context, userID, id string) error
}

// Subscriber delivers status changes as they are published.
type Subscriber interface {
	Subscribe(ctx context.Context, projectID string) (<-chan domain.StatusRecord, error)
}

type Handler struct {
	pipeline     Pipeline
	events       Subscriber
	pollInterval time.Duration
	keepAlive    time.Duration
}

// NewHandler builds the project handlers. events may be nil, in which case
// streams fall back to polling only.
func NewHandler(pipeline Pipeline, events Subscriber) *Handler {
	return &Handler{
		pipeline:     pipeline,
		events:       events,
		pollInterval: 1 * time.Second,
		keepAlive:    15 * time.Second,
	}
}

// Register attaches project routes to the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("", h.create)
	rg.POST("/sync", h.createSync)
	rg.GET("", h.list)
	rg.GET("/:id", h.status)
	rg.GET("/:id/stream", h.stream)
	rg.POST("/:id/continue", h.continueAsync)
	rg.POST("/:id/continue/sync", h.continueSync)
	rg.DELETE("/:id", h.delete)
}
