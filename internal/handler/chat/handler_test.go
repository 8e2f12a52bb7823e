package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/oakdemir/pharmachat/internal/model/chat"
	chatservice "github.com/oakdemir/pharmachat/internal/service/chat"
	"github.com/oakdemir/pharmachat/internal/service/conversation"
	"github.com/oakdemir/pharmachat/internal/store"
)

type scriptedGateway struct {
	reply string
}

func (g *scriptedGateway) Generate(context.Context, string, []chatmodel.Message, string) (string, error) {
	return g.reply, nil
}

func (g *scriptedGateway) Stream(context.Context, string, []chatmodel.Message, string) (chatmodel.TokenStream, error) {
	return nil, io.EOF
}

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := chatservice.NewService(repo)
	manager := conversation.NewManager(svc, &scriptedGateway{reply: "Aspirin bir ağrı kesicidir."}, 5*time.Second)
	handler := New(manager)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r *chi.Mux, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestListSessionsRequiresAuth(t *testing.T) {
	r := setupRouter(t)

	resp := doJSON(t, r, http.MethodGet, "/sessions", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestSendMessageCreatesSessionAndLists(t *testing.T) {
	r := setupRouter(t)

	resp := doJSON(t, r, http.MethodPost, "/chat", "user-1", SendRequest{Message: "Aspirin ne işe yarar?"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result chatmodel.TurnResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.IsNewSession || result.SessionID == "" {
		t.Fatalf("expected a new session, got %+v", result)
	}

	list := doJSON(t, r, http.MethodGet, "/sessions", "user-1", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", list.Code)
	}
	var sessions []chatmodel.SessionSummary
	if err := json.Unmarshal(list.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].MessageCount != 2 {
		t.Fatalf("unexpected session list: %+v", sessions)
	}

	messages := doJSON(t, r, http.MethodGet, "/sessions/"+result.SessionID+"/messages", "user-1", nil)
	if messages.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", messages.Code)
	}
	var entries []conversation.Entry
	if err := json.Unmarshal(messages.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(entries))
	}
}

func TestSendMessageRejectsBlankText(t *testing.T) {
	r := setupRouter(t)

	resp := doJSON(t, r, http.MethodPost, "/chat", "user-1", SendRequest{Message: "   "})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSendMessageRequiresAuth(t *testing.T) {
	r := setupRouter(t)

	resp := doJSON(t, r, http.MethodPost, "/chat", "", SendRequest{Message: "Soru?"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestDeleteSessionCrossOwnerForbidden(t *testing.T) {
	r := setupRouter(t)

	resp := doJSON(t, r, http.MethodPost, "/chat", "user-1", SendRequest{Message: "Soru?"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var result chatmodel.TurnResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}

	del := doJSON(t, r, http.MethodDelete, "/sessions/"+result.SessionID, "user-2", nil)
	if del.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", del.Code)
	}

	// Owner still sees the session.
	list := doJSON(t, r, http.MethodGet, "/sessions", "user-1", nil)
	var sessions []chatmodel.SessionSummary
	if err := json.Unmarshal(list.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("session must survive a forbidden delete, got %d", len(sessions))
	}
}

func TestRetryWithoutPartialTurn(t *testing.T) {
	r := setupRouter(t)

	resp := doJSON(t, r, http.MethodPost, "/chat/retry", "user-1", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestListMessagesUnknownSession(t *testing.T) {
	r := setupRouter(t)

	resp := doJSON(t, r, http.MethodGet, "/sessions/missing/messages", "user-1", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
