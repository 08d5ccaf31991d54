// Package api exposes the job and chat endpoints over HTTP with gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/DocChat/internal/config"
	"github.com/dharsanguruparan/DocChat/internal/lifecycle"
	"github.com/dharsanguruparan/DocChat/internal/logger"
	"github.com/dharsanguruparan/DocChat/internal/model"
	"github.com/dharsanguruparan/DocChat/internal/signing"
)

// JobService accepts and removes jobs.
type JobService interface {
	Submit(ctx context.Context, upload *lifecycle.Upload) (*model.Job, error)
	Delete(ctx context.Context, id string) error
}

// JobReader looks jobs up for the read endpoints.
type JobReader interface {
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context) ([]*model.Job, error)
}

// Chatter answers questions about a finished job.
type Chatter interface {
	Chat(ctx context.Context, jobID, prompt string, history []model.ChatTurn) (string, error)
}

// DocumentReader serves stored originals for signed downloads.
type DocumentReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Deps groups the collaborators behind the handlers.
type Deps struct {
	Jobs      JobService
	Reader    JobReader
	Chat      Chatter
	Documents DocumentReader
	Signer    *signing.Signer
}

// Server exposes HTTP endpoints for jobs, chat and document downloads.
type Server struct {
	cfg     *config.Config
	jobs    JobService
	reader  JobReader
	chat    Chatter
	docs    DocumentReader
	signer  *signing.Signer
	log     *logger.Logger
	handler http.Handler
}

// New constructs a Server and its router.
func New(cfg *config.Config, deps Deps, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:    cfg,
		jobs:   deps.Jobs,
		reader: deps.Reader,
		chat:   deps.Chat,
		docs:   deps.Documents,
		signer: deps.Signer,
		log:    log.With("component", "api"),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *gin.Engine {
	if s.cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(gin.Recovery(), requestLogger(s.log), corsMiddleware(s.cfg.CORSOrigins))
	// Uploads are streamed to the blob store; keep little of them in memory.
	router.MaxMultipartMemory = 8 << 20

	router.GET("/healthz", s.handleHealth)

	jobs := router.Group("/jobs")
	handle(jobs, http.MethodPost, "", s.handleCreate)
	handle(jobs, http.MethodGet, "", s.handleList)
	handle(jobs, http.MethodGet, "/:id", s.handleGet)
	handle(jobs, http.MethodDelete, "/:id", s.handleDelete)
	handle(jobs, http.MethodPost, "/:id/chat", s.handleChat)
	handle(jobs, http.MethodGet, "/:id/document", s.handleDocument)
	return router
}

// handle registers path both with and without a trailing slash.
func handle(g *gin.RouterGroup, method, path string, h gin.HandlerFunc) {
	g.Handle(method, path, h)
	g.Handle(method, path+"/", h)
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("api.listening", "address", s.cfg.Address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
