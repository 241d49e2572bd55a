package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/StudyLine/internal/convstore"
	"github.com/BTreeMap/StudyLine/internal/delivery"
	"github.com/BTreeMap/StudyLine/internal/engine"
	"github.com/BTreeMap/StudyLine/internal/livechat"
	"github.com/BTreeMap/StudyLine/internal/models"
	"github.com/BTreeMap/StudyLine/internal/services"
)

type mockTransport struct{}

func (m *mockTransport) SendText(ctx context.Context, to string, body string) error { return nil }
func (m *mockTransport) SendInteractive(ctx context.Context, to string, body string, buttons []models.ButtonSpec) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, *engine.Engine, *convstore.InMemoryStore) {
	t.Helper()
	store := convstore.NewInMemoryStore()
	eng := engine.New(store, delivery.NewOrchestrator(&mockTransport{}),
		services.NewInMemoryDirectory(), services.NewInMemoryDesk(), services.NewStaticGateway(""))
	bridge := livechat.NewBridge(store, eng)
	return NewServer(store, bridge, nil), eng, store
}

func postJSON(t *testing.T, handler http.Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decodeResponse(t, w); resp.Status != string(models.APIStatusOK) {
		t.Errorf("expected ok status, got %s", resp.Status)
	}
}

func TestOperatorMessageValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	w := postJSON(t, h, "/operator/message", models.OperatorMessageRequest{Identity: "", Text: "hi"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing identity should 400, got %d", w.Code)
	}

	w = postJSON(t, h, "/operator/message", models.OperatorMessageRequest{Identity: "+15551234567", Text: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing text should 400, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/operator/message", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON should 400, got %d", rec.Code)
	}
}

func TestOperatorMessageOutsideLiveChatConflicts(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	eng.HandleEvent(context.Background(), models.InboundEvent{From: "+15551234567", Body: "hi"})

	w := postJSON(t, srv.Handler(), "/operator/message",
		models.OperatorMessageRequest{Identity: "+15551234567", Text: "agent here"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 outside live chat, got %d", w.Code)
	}
}

func TestOperatorMessageAndEndChatLifecycle(t *testing.T) {
	srv, eng, store := newTestServer(t)
	h := srv.Handler()
	ctx := context.Background()

	eng.HandleEvent(ctx, models.InboundEvent{From: "+15551234567", Body: "talk to someone"})

	w := postJSON(t, h, "/operator/message",
		models.OperatorMessageRequest{Identity: "+15551234567", Text: "agent here"})
	if w.Code != http.StatusOK {
		t.Fatalf("operator message in live chat should 200, got %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(t, h, "/operator/end",
		models.OperatorEndChatRequest{Identity: "+15551234567", Text: "bye!"})
	if w.Code != http.StatusOK {
		t.Fatalf("end chat should 200, got %d: %s", w.Code, w.Body.String())
	}

	rec, _ := store.Get(ctx, "+15551234567")
	if rec.LiveChat {
		t.Error("live chat should be ended after /operator/end")
	}

	// Ending again conflicts.
	w = postJSON(t, h, "/operator/end", models.OperatorEndChatRequest{Identity: "+15551234567"})
	if w.Code != http.StatusConflict {
		t.Errorf("double end should 409, got %d", w.Code)
	}
}

func TestConversationInspection(t *testing.T) {
	srv, eng, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/conversations/+15551234567", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unseen conversation should 404, got %d", w.Code)
	}

	eng.HandleEvent(context.Background(), models.InboundEvent{From: "+15551234567", Body: "hi"})

	req = httptest.NewRequest(http.MethodGet, "/conversations/+15551234567", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for known conversation, got %d", w.Code)
	}

	resp := decodeResponse(t, w)
	result, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	var rec models.ConversationRecord
	if err := json.Unmarshal(result, &rec); err != nil {
		t.Fatalf("result is not a conversation record: %v", err)
	}
	if rec.State != models.StateRegisteringName {
		t.Errorf("expected REGISTERING_NAME in inspection payload, got %s", rec.State)
	}
	if len(rec.MessageLog) == 0 {
		t.Error("inspection payload should include the message log")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/operator/message", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on operator message should 405, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST on health should 405, got %d", w.Code)
	}
}

func TestWebhookRouteOnlyWhenConfigured(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("webhook route should be absent without a handler, got %d", w.Code)
	}

	called := false
	store := convstore.NewInMemoryStore()
	eng := engine.New(store, delivery.NewOrchestrator(&mockTransport{}),
		services.NewInMemoryDirectory(), services.NewInMemoryDesk(), services.NewStaticGateway(""))
	withHook := NewServer(store, livechat.NewBridge(store, eng), func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	w = httptest.NewRecorder()
	withHook.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", nil))
	if !called || w.Code != http.StatusOK {
		t.Errorf("configured webhook should be invoked, called=%v code=%d", called, w.Code)
	}
}
