package a2a

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/pkg/a2aprotocol"
)

func newTestServer(runner TurnRunner) (*Server, *fakeA2ATaskStore) {
	svc, tasks := newTestService(runner)
	cfg := &config.A2AConfig{Host: "localhost", Port: 0}
	return NewServer(cfg, svc), tasks
}

func TestServer_AgentCardEndpoints(t *testing.T) {
	srv, _ := newTestServer(&fakeTurnRunner{replyText: "hi"})
	mux := srv.BuildMux()

	for _, path := range []string{"/.well-known/agent.json", "/.well-known/agent-card.json"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		var card a2aprotocol.AgentCard
		if err := json.Unmarshal(rec.Body.Bytes(), &card); err != nil {
			t.Fatalf("%s: decode error = %v", path, err)
		}
		if len(card.Skills) != 1 {
			t.Errorf("%s: skills = %d, want 1", path, len(card.Skills))
		}
	}
}

func TestServer_HandleRPC_MessageSend(t *testing.T) {
	srv, _ := newTestServer(&fakeTurnRunner{replyText: "pong"})
	mux := srv.BuildMux()

	params, _ := json.Marshal(a2aprotocol.MessageSendParams{
		Message: a2aprotocol.Message{Role: "user", Parts: []a2aprotocol.Part{a2aprotocol.TextPart("ping")}, MessageID: "m1"},
	})
	body, _ := json.Marshal(a2aprotocol.JSONRPCRequest{
		JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: a2aprotocol.MethodMessageSend, Params: params,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/a2a", bytes.NewReader(body))
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp a2aprotocol.JSONRPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected RPC error: %+v", resp.Error)
	}
}

func TestServer_HandleRPC_UnknownMethod(t *testing.T) {
	srv, _ := newTestServer(&fakeTurnRunner{})
	mux := srv.BuildMux()

	body, _ := json.Marshal(a2aprotocol.JSONRPCRequest{JSONRPC: "2.0", ID: json.RawMessage(`2`), Method: "bogus/method"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/a2a", bytes.NewReader(body))
	mux.ServeHTTP(rec, req)

	var resp a2aprotocol.JSONRPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if resp.Error == nil || resp.Error.Code != a2aprotocol.CodeMethodNotFound {
		t.Fatalf("expected CodeMethodNotFound, got %+v", resp.Error)
	}
}

func TestServer_HandleRPC_TasksGetNotFound(t *testing.T) {
	srv, _ := newTestServer(&fakeTurnRunner{})
	mux := srv.BuildMux()

	params, _ := json.Marshal(a2aprotocol.TaskIDParams{TaskID: "missing"})
	body, _ := json.Marshal(a2aprotocol.JSONRPCRequest{JSONRPC: "2.0", ID: json.RawMessage(`3`), Method: a2aprotocol.MethodTasksGet, Params: params})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/a2a", bytes.NewReader(body))
	mux.ServeHTTP(rec, req)

	var resp a2aprotocol.JSONRPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if resp.Error == nil || resp.Error.Code != a2aprotocol.CodeTaskNotFound {
		t.Fatalf("expected CodeTaskNotFound, got %+v", resp.Error)
	}
}

func TestServer_HandleStream_EmitsStatusAndArtifact(t *testing.T) {
	srv, _ := newTestServer(&fakeTurnRunner{replyText: "streamed reply"})
	mux := srv.BuildMux()

	params, _ := json.Marshal(a2aprotocol.MessageSendParams{
		Message: a2aprotocol.Message{Role: "user", Parts: []a2aprotocol.Part{a2aprotocol.TextPart("go")}, MessageID: "m2"},
	})
	body, _ := json.Marshal(a2aprotocol.JSONRPCRequest{JSONRPC: "2.0", ID: json.RawMessage(`4`), Method: a2aprotocol.MethodMessageStream, Params: params})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/a2a/stream", bytes.NewReader(body))
	mux.ServeHTTP(rec, req)

	out := rec.Body.String()
	if !strings.Contains(out, "event: status") {
		t.Errorf("missing status event in stream: %s", out)
	}
	if !strings.Contains(out, "event: artifact") {
		t.Errorf("missing artifact event in stream: %s", out)
	}
	if !strings.Contains(out, "streamed reply") {
		t.Errorf("missing reply text in stream: %s", out)
	}
	if !strings.Contains(out, `"final":true`) {
		t.Errorf("missing final status flag in stream: %s", out)
	}
}

func TestServer_RequireAuth_RejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(&fakeTurnRunner{})
	srv.cfg.Token = "secret"
	mux := srv.BuildMux()

	body, _ := json.Marshal(a2aprotocol.JSONRPCRequest{JSONRPC: "2.0", Method: a2aprotocol.MethodTasksGet})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/a2a", bytes.NewReader(body))
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
