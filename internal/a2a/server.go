package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/familyassistant/core/internal/config"
	"github.com/familyassistant/core/internal/store"
	"github.com/familyassistant/core/pkg/a2aprotocol"
)

// Server exposes a Service over the §6.5 JSON-RPC 2.0 + SSE wire protocol.
// Grounded on the teacher's gateway.Server split between BuildMux (route
// registration, safe to call repeatedly) and Start (listen + graceful
// shutdown on context cancellation).
type Server struct {
	cfg *config.A2AConfig
	svc *Service

	httpServer *http.Server
	mux        *http.ServeMux
}

func NewServer(cfg *config.A2AConfig, svc *Service) *Server {
	return &Server{cfg: cfg, svc: svc}
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/agent.json", s.handleAgentCard)
	mux.HandleFunc("/.well-known/agent-card.json", s.handleAgentCard)
	mux.HandleFunc("/a2a", s.requireAuth(s.handleRPC))
	mux.HandleFunc("/a2a/stream", s.requireAuth(s.handleStream))
	s.mux = mux
	return mux
}

// Start begins listening, shutting down gracefully when ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	slog.Info("a2a server starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("a2a server: %w", err)
	}
	return nil
}

// requireAuth enforces the configured bearer token, when set (§6.6).
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+s.cfg.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.svc.AgentCard()); err != nil {
		slog.Error("a2a.agent_card_encode_failed", "error", err)
	}
}

// handleRPC serves the synchronous JSON-RPC 2.0 methods: message/send,
// tasks/get, tasks/cancel.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeRPCResponse(w, a2aprotocol.NewErrorResponse(nil, a2aprotocol.CodeParseError, "failed to read body", nil))
		return
	}
	defer r.Body.Close()

	var req a2aprotocol.JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCResponse(w, a2aprotocol.NewErrorResponse(nil, a2aprotocol.CodeParseError, "invalid JSON", nil))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCResponse(w, a2aprotocol.NewErrorResponse(req.ID, a2aprotocol.CodeInvalidRequest, "invalid JSON-RPC request", nil))
		return
	}

	ctx := r.Context()
	switch req.Method {
	case a2aprotocol.MethodMessageSend:
		var params a2aprotocol.MessageSendParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeRPCResponse(w, a2aprotocol.NewErrorResponse(req.ID, a2aprotocol.CodeInvalidParams, err.Error(), nil))
			return
		}
		task, err := s.svc.SendMessage(ctx, params)
		if err != nil {
			writeRPCResponse(w, internalErrorResponse(req.ID, err))
			return
		}
		writeRPCResponse(w, a2aprotocol.NewResponse(req.ID, task))

	case a2aprotocol.MethodTasksGet:
		var params a2aprotocol.TaskIDParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeRPCResponse(w, a2aprotocol.NewErrorResponse(req.ID, a2aprotocol.CodeInvalidParams, err.Error(), nil))
			return
		}
		task, err := s.svc.GetTask(ctx, params.TaskID)
		if err != nil {
			writeRPCResponse(w, taskLookupErrorResponse(req.ID, err))
			return
		}
		writeRPCResponse(w, a2aprotocol.NewResponse(req.ID, task))

	case a2aprotocol.MethodTasksCancel:
		var params a2aprotocol.TaskIDParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeRPCResponse(w, a2aprotocol.NewErrorResponse(req.ID, a2aprotocol.CodeInvalidParams, err.Error(), nil))
			return
		}
		task, err := s.svc.CancelTask(ctx, params.TaskID)
		if err != nil {
			if errors.Is(err, ErrNotCancelable) {
				writeRPCResponse(w, a2aprotocol.NewErrorResponse(req.ID, a2aprotocol.CodeTaskNotCancelable, err.Error(), nil))
				return
			}
			writeRPCResponse(w, taskLookupErrorResponse(req.ID, err))
			return
		}
		writeRPCResponse(w, a2aprotocol.NewResponse(req.ID, task))

	default:
		writeRPCResponse(w, a2aprotocol.NewErrorResponse(req.ID, a2aprotocol.CodeMethodNotFound, "unknown method: "+req.Method, nil))
	}
}

// handleStream serves message/stream over SSE: a status event when the
// task starts, one artifact event carrying the reply, and a final status
// event with Final set.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if r.Method != http.MethodPost {
		writeSSEError(w, flusher, "method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeSSEError(w, flusher, "failed to read body")
		return
	}
	defer r.Body.Close()

	var req a2aprotocol.JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeSSEError(w, flusher, "invalid JSON")
		return
	}
	if req.Method != a2aprotocol.MethodMessageStream {
		writeSSEError(w, flusher, "unsupported method for streaming: "+req.Method)
		return
	}
	var params a2aprotocol.MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeSSEError(w, flusher, "invalid params: "+err.Error())
		return
	}

	taskID := params.Message.TaskID
	if taskID == "" {
		taskID = params.Message.ContextID
	}

	writeSSEEvent(w, flusher, a2aprotocol.StreamEvent{Kind: "status", TaskID: taskID, Status: string(store.A2AWorking)})

	task, err := s.svc.SendMessage(r.Context(), params)
	if err != nil {
		writeSSEError(w, flusher, err.Error())
		return
	}

	var reply a2aprotocol.Message
	if n := len(task.Messages); n > 0 {
		reply = task.Messages[n-1]
	}
	writeSSEEvent(w, flusher, a2aprotocol.StreamEvent{
		Kind:   "artifact",
		TaskID: task.TaskID,
		Artifact: &a2aprotocol.Artifact{
			ArtifactID: task.TaskID + "-reply",
			Parts:      reply.Parts,
			LastChunk:  true,
		},
	})
	writeSSEEvent(w, flusher, a2aprotocol.StreamEvent{Kind: "status", TaskID: task.TaskID, Status: task.Status, Final: true})
}

func writeRPCResponse(w http.ResponseWriter, resp a2aprotocol.JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("a2a.rpc_encode_failed", "error", err)
	}
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, ev a2aprotocol.StreamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("a2a.sse_encode_failed", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	f.Flush()
}

func writeSSEError(w http.ResponseWriter, f http.Flusher, message string) {
	data, _ := json.Marshal(a2aprotocol.RPCError{Code: a2aprotocol.CodeInternalError, Message: message})
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	f.Flush()
}

func internalErrorResponse(id json.RawMessage, err error) a2aprotocol.JSONRPCResponse {
	return a2aprotocol.NewErrorResponse(id, a2aprotocol.CodeInternalError, err.Error(), nil)
}

func taskLookupErrorResponse(id json.RawMessage, err error) a2aprotocol.JSONRPCResponse {
	return a2aprotocol.NewErrorResponse(id, a2aprotocol.CodeTaskNotFound, err.Error(), nil)
}
