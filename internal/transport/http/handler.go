// Package http exposes the context engine's HTTP surface: the streaming
// Turn API and the KnowledgeDocument upload/delete endpoints. It uses the
// standard library net/http and http.ServeMux throughout — no router
// library appears anywhere in the retrieval pack, so none is introduced
// here.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/causalfractal/contextengine/internal/observe"
	"github.com/causalfractal/contextengine/internal/orchestrator"
	"github.com/causalfractal/contextengine/pkg/contextmodel"
)

// TurnHandler is the orchestrator slice this transport needs.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnHandle, error)
}

// DocumentStore is the knowledgedocs slice this transport needs.
type DocumentStore interface {
	AddDocument(ctx context.Context, doc contextmodel.KnowledgeDocument) error
	DeleteDocument(ctx context.Context, docID string) error
}

// Handler serves the context engine's HTTP API.
type Handler struct {
	orch    TurnHandler
	docs    DocumentStore
	metrics *observe.Metrics
}

// New constructs a Handler. metrics may be nil, in which case request
// duration is not recorded (useful in tests).
func New(orch TurnHandler, docs DocumentStore, metrics *observe.Metrics) *Handler {
	return &Handler{orch: orch, docs: docs, metrics: metrics}
}

// Register adds the context engine's routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/turns", h.handleTurn)
	mux.HandleFunc("POST /v1/documents", h.handleAddDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", h.handleDeleteDocument)
}

// turnRequestBody is the Turn API's HTTP-agnostic JSON request contract.
type turnRequestBody struct {
	Messages     []contextmodel.ContextChainEntry `json:"messages"`
	ParentNodeID string                            `json:"parent_node_id"`
}

// handleTurn implements the Turn API: it decodes the request, delegates to
// the orchestrator, sets the X-Session-ID / X-User-Node-ID /
// X-Assistant-Node-ID headers before writing any body bytes, and streams
// assistant tokens as a text/plain body, flushing after every chunk so no
// batching delay is introduced between the orchestrator and the client.
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var body turnRequestBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	sessionID, err := sessionIDFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var parentID *uuid.UUID
	if body.ParentNodeID != "" {
		id, err := uuid.Parse(body.ParentNodeID)
		if err != nil {
			http.Error(w, "invalid parent_node_id", http.StatusBadRequest)
			return
		}
		parentID = &id
	}

	userContent := latestUserContent(body.Messages)
	if userContent == "" {
		http.Error(w, "messages must contain at least one user turn", http.StatusBadRequest)
		return
	}

	start := time.Now()
	handle, err := h.orch.HandleTurn(r.Context(), orchestrator.TurnRequest{
		SessionID:    sessionID,
		ParentNodeID: parentID,
		UserContent:  userContent,
		History:      body.Messages,
	})
	if err != nil {
		h.recordTurn(r.Context(), "rejected", time.Since(start))
		if errors.Is(err, orchestrator.ErrInputRejected) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("transport: HandleTurn failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("X-Session-ID", handle.SessionID.String())
	w.Header().Set("X-User-Node-ID", handle.UserNodeID.String())
	w.Header().Set("X-Assistant-Node-ID", handle.AssistantNodeID.String())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	clientGone := r.Context().Done()
	streaming := true
	for streaming {
		select {
		case chunk, ok := <-handle.Chunks:
			if !ok {
				streaming = false
				break
			}
			if _, err := w.Write([]byte(chunk)); err != nil {
				slog.Warn("transport: write to client failed, abandoning stream", "error", err)
				return
			}
			if canFlush {
				flusher.Flush()
			}
		case <-clientGone:
			slog.Info("transport: client disconnected mid-stream", "session_id", handle.SessionID)
			return
		}
	}

	status := "ok"
	if streamErr := <-handle.Err; streamErr != nil {
		status = "error"
	}
	h.recordTurn(r.Context(), status, time.Since(start))
}

func (h *Handler) recordTurn(ctx context.Context, status string, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordTurn(ctx, status)
	h.metrics.TurnDuration.Record(ctx, elapsed.Seconds())
}

// sessionIDFromRequest reads session_id from the query string or the
// "session_id" cookie, minting a fresh one when neither is present.
func sessionIDFromRequest(r *http.Request) (uuid.UUID, error) {
	if raw := r.URL.Query().Get("session_id"); raw != "" {
		return uuid.Parse(raw)
	}
	if c, err := r.Cookie("session_id"); err == nil && c.Value != "" {
		return uuid.Parse(c.Value)
	}
	return uuid.New(), nil
}

// latestUserContent returns the content of the last user-role message in
// messages, or the empty string when none is present.
func latestUserContent(messages []contextmodel.ContextChainEntry) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == contextmodel.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// handleAddDocument implements POST /v1/documents: the request body is a
// JSON object carrying doc_id, filename and content.
func (h *Handler) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocID    string `json:"doc_id"`
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.DocID == "" {
		req.DocID = uuid.New().String()
	}
	if req.Content == "" {
		http.Error(w, "content must not be empty", http.StatusBadRequest)
		return
	}

	err := h.docs.AddDocument(r.Context(), contextmodel.KnowledgeDocument{
		DocID:      req.DocID,
		Filename:   req.Filename,
		Content:    req.Content,
		UploadedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("transport: AddDocument failed", "doc_id", req.DocID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"doc_id": req.DocID})
}

// handleDeleteDocument implements DELETE /v1/documents/{id}.
func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "missing document id", http.StatusBadRequest)
		return
	}
	if err := h.docs.DeleteDocument(r.Context(), id); err != nil {
		slog.Error("transport: DeleteDocument failed", "doc_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
