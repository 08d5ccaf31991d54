package api

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/DocChat/internal/blob"
	"github.com/dharsanguruparan/DocChat/internal/chat"
	"github.com/dharsanguruparan/DocChat/internal/jobstore"
	"github.com/dharsanguruparan/DocChat/internal/lifecycle"
	"github.com/dharsanguruparan/DocChat/internal/model"
)

const (
	documentField = "document"

	msgNotFound      = "Job not found."
	msgNotReady      = "Document is not ready for chat or does not exist."
	msgInternalError = "An internal error occurred."
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreate(c *gin.Context) {
	// Leave headroom for the multipart framing around the file.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxFileSize+1<<20)

	var upload *lifecycle.Upload
	fh, err := c.FormFile(documentField)
	switch {
	case err == nil:
		if fh.Size > s.cfg.MaxFileSize {
			respondError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds limit (%d bytes)", s.cfg.MaxFileSize))
			return
		}
		f, err := fh.Open()
		if err != nil {
			respondError(c, http.StatusBadRequest, "could not read uploaded file")
			return
		}
		defer f.Close()
		upload = &lifecycle.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// A job without a document is accepted and fails during processing.
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds limit (%d bytes)", s.cfg.MaxFileSize))
			return
		}
		respondError(c, http.StatusBadRequest, "invalid multipart form")
		return
	}

	job, err := s.jobs.Submit(c.Request.Context(), upload)
	if err != nil {
		s.log.Error("api.submit_failed", "error", err)
		respondError(c, http.StatusInternalServerError, msgInternalError)
		return
	}
	c.JSON(http.StatusCreated, s.serializeJob(c, job))
}

func (s *Server) handleList(c *gin.Context) {
	jobs, err := s.reader.List(c.Request.Context())
	if err != nil {
		s.log.Error("api.list_failed", "error", err)
		respondError(c, http.StatusInternalServerError, msgInternalError)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, s.serializeJob(c, job))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGet(c *gin.Context) {
	job, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.serializeJob(c, job))
}

func (s *Server) handleDelete(c *gin.Context) {
	err := s.jobs.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, jobstore.ErrNotFound):
		respondError(c, http.StatusNotFound, msgNotFound)
	default:
		s.log.Error("api.delete_failed", "job_id", c.Param("id"), "error", err)
		respondError(c, http.StatusInternalServerError, msgInternalError)
	}
}

func (s *Server) handleChat(c *gin.Context) {
	job, ok := s.lookup(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid chat request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(c, http.StatusBadRequest, "prompt must not be empty")
		return
	}
	for i, turn := range req.History {
		if !model.ValidRole(turn.Role) {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("history[%d]: role must be %q or %q", i, model.RoleUser, model.RoleAssistant))
			return
		}
		if strings.TrimSpace(turn.Content) == "" {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("history[%d]: content must not be blank", i))
			return
		}
	}

	reply, err := s.chat.Chat(c.Request.Context(), job.ID, req.Prompt, req.History)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, chatResponse{Reply: reply})
	case errors.Is(err, jobstore.ErrNotFound):
		respondError(c, http.StatusNotFound, msgNotFound)
	case errors.Is(err, chat.ErrNotReady):
		respondError(c, http.StatusBadRequest, msgNotReady)
	case errors.Is(err, chat.ErrInvalidHistory), errors.Is(err, chat.ErrEmptyPrompt):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, msgInternalError)
	}
}

func (s *Server) handleDocument(c *gin.Context) {
	id := c.Param("id")
	if !s.signer.Validate(id, c.Query("expires"), c.Query("signature")) {
		respondError(c, http.StatusForbidden, "invalid or expired signature")
		return
	}
	job, ok := s.lookup(c)
	if !ok {
		return
	}
	if !job.HasDocument() {
		respondError(c, http.StatusNotFound, "job has no document")
		return
	}
	data, err := s.docs.Get(c.Request.Context(), job.DocumentRef)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			respondError(c, http.StatusNotFound, "document is missing from storage")
			return
		}
		s.log.Error("api.document_read_failed", "job_id", id, "error", err)
		respondError(c, http.StatusInternalServerError, msgInternalError)
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(job.DocumentName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": job.DocumentName}))
	c.Data(http.StatusOK, contentType, data)
}

// lookup loads the job named by the :id parameter, writing a 404 or 500 when
// it cannot.
func (s *Server) lookup(c *gin.Context) (*model.Job, bool) {
	job, err := s.reader.Get(c.Request.Context(), c.Param("id"))
	if err == nil {
		return job, true
	}
	if errors.Is(err, jobstore.ErrNotFound) {
		respondError(c, http.StatusNotFound, msgNotFound)
		return nil, false
	}
	s.log.Error("api.lookup_failed", "job_id", c.Param("id"), "error", err)
	respondError(c, http.StatusInternalServerError, msgInternalError)
	return nil, false
}
