package api

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/DocChat/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

// jobResponse is the wire form of a job. Document is a signed download link
// and Result stays null until the job finishes.
type jobResponse struct {
	ID        string          `json:"id"`
	Status    model.JobStatus `json:"status"`
	Document  *string         `json:"document"`
	Result    *string         `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type chatRequest struct {
	Prompt  string           `json:"prompt" binding:"required"`
	History []model.ChatTurn `json:"history"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) serializeJob(c *gin.Context, job *model.Job) jobResponse {
	out := jobResponse{
		ID:        job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Result != "" {
		result := job.Result
		out.Result = &result
	}
	if job.HasDocument() {
		link := s.documentURL(c, job.ID)
		out.Document = &link
	}
	return out
}

func (s *Server) documentURL(c *gin.Context, jobID string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     c.Request.Host,
		Path:     "/jobs/" + url.PathEscape(jobID) + "/document",
		RawQuery: s.signer.Query(jobID, s.cfg.SignedURLTTL).Encode(),
	}
	return u.String()
}
