package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/StudyLine/internal/models"
)

// webhookHandler delegates to the transport-provided ingress handler. The
// transport acks unconditionally; only the method check lives here.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.webhook(w, r)
}

// operatorMessageHandler handles POST /operator/message.
func (s *Server) operatorMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.operatorMessageHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.OperatorMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.operatorMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Identity == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("identity is required"))
		return
	}
	if req.Text == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("text is required"))
		return
	}

	attempts, err := s.bridge.SendOperatorMessage(r.Context(), req.Identity, req.Text)
	if err != nil {
		if errors.Is(err, models.ErrNotInLiveChat) {
			writeJSONResponse(w, http.StatusConflict, models.Error("Conversation is not in live chat"))
			return
		}
		slog.Error("Server.operatorMessageHandler: bridge error", "error", err, "identity", req.Identity)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send operator message"))
		return
	}
	if !models.Succeeded(attempts) {
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Message accepted but delivery failed on all tiers"))
		return
	}

	slog.Info("Server.operatorMessageHandler: operator message sent", "identity", req.Identity)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Operator message delivered", nil))
}

// operatorEndHandler handles POST /operator/end.
func (s *Server) operatorEndHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.operatorEndHandler: processing request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.OperatorEndChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.operatorEndHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Identity == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("identity is required"))
		return
	}

	rec, err := s.bridge.EndChat(r.Context(), req.Identity, req.Text)
	if err != nil {
		if errors.Is(err, models.ErrNotInLiveChat) {
			writeJSONResponse(w, http.StatusConflict, models.Error("Conversation is not in live chat"))
			return
		}
		slog.Error("Server.operatorEndHandler: bridge error", "error", err, "identity", req.Identity)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to end chat"))
		return
	}

	slog.Info("Server.operatorEndHandler: live chat ended", "identity", req.Identity, "state", rec.State)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Live chat ended", rec))
}

// conversationHandler handles GET /conversations/{identity}.
func (s *Server) conversationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	identity := strings.TrimPrefix(r.URL.Path, "/conversations/")
	if identity == "" || strings.Contains(identity, "/") {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("identity is required"))
		return
	}

	rec, err := s.store.Peek(r.Context(), identity)
	if err != nil {
		slog.Error("Server.conversationHandler: store error", "error", err, "identity", identity)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}
	if rec == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(rec))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}
