package a2aprotocol

import (
	"encoding/base64"
	"encoding/json"
)

// JSONRPCRequest is the envelope POST /a2a and POST /a2a/stream decode into,
// grounded on the pack's one real JSON-RPC 2.0 transport.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is the synchronous reply envelope for POST /a2a.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a standard JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func NewResponse(id json.RawMessage, result any) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func NewErrorResponse(id json.RawMessage, code int, message string, data any) JSONRPCResponse {
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

// Part is a single piece of message or artifact content. Exactly one of
// Text or the inline-data fields is populated, matching §6.5's multipart
// message shape.
type Part struct {
	Kind     string `json:"kind"` // "text" or "data"
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"` // base64, when Kind == "data"
}

func TextPart(text string) Part {
	return Part{Kind: "text", Text: text}
}

func DataPart(mimeType string, data []byte) Part {
	return Part{Kind: "data", MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}
}

// Message is a single turn in the A2A conversation — a user request or an
// agent reply.
type Message struct {
	Role      string `json:"role"` // "user" or "agent"
	Parts     []Part `json:"parts"`
	MessageID string `json:"message_id"`
	TaskID    string `json:"task_id,omitempty"`
	ContextID string `json:"context_id,omitempty"`
}

// Artifact is a named bundle of output parts a task produces, streamed
// incrementally via artifact-update events with Append/LastChunk framing.
type Artifact struct {
	ArtifactID string `json:"artifact_id"`
	Name       string `json:"name,omitempty"`
	Parts      []Part `json:"parts"`
	Append     bool   `json:"append,omitempty"`
	LastChunk  bool   `json:"last_chunk,omitempty"`
}

// Task is the externally visible task resource returned by tasks/get and
// embedded in message/send's result.
type Task struct {
	TaskID    string     `json:"task_id"`
	ContextID string     `json:"context_id,omitempty"`
	Status    string     `json:"status"`
	Messages  []Message  `json:"history,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// MessageSendParams is the decoded params object for message/send and
// message/stream.
type MessageSendParams struct {
	Message   Message `json:"message"`
	ProfileID string  `json:"profile_id,omitempty"`
}

// TaskIDParams is the decoded params object for tasks/get and tasks/cancel.
type TaskIDParams struct {
	TaskID string `json:"task_id"`
}

// StreamEvent is the payload carried by each SSE `data:` line on
// POST /a2a/stream. Kind selects which of Status/Artifact is populated.
type StreamEvent struct {
	Kind     string    `json:"kind"` // "status" or "artifact"
	TaskID   string    `json:"task_id"`
	Status   string    `json:"status,omitempty"`
	Message  *Message  `json:"message,omitempty"`
	Artifact *Artifact `json:"artifact,omitempty"`
	Final    bool      `json:"final,omitempty"`
}

// AgentCard is served at /.well-known/agent.json and
// /.well-known/agent-card.json.
type AgentCard struct {
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	URL                string             `json:"url"`
	Version            string             `json:"version"`
	Capabilities       AgentCapabilities  `json:"capabilities"`
	Skills             []AgentSkill       `json:"skills"`
	DefaultInputModes  []string           `json:"defaultInputModes"`
	DefaultOutputModes []string           `json:"defaultOutputModes"`
}

type AgentCapabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// AgentSkill describes one selectable processing profile.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}
