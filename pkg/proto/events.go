package proto

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the kind of agent event on the wire.
type EventType string

const (
	EventAgentSpawn      EventType = "agent:spawn"
	EventAgentThinking   EventType = "agent:thinking"
	EventAgentTool       EventType = "agent:tool"
	EventAgentStatus     EventType = "agent:status"
	EventAgentResult     EventType = "agent:result"
	EventAgentQuestion   EventType = "agent:question"
	EventMessageChunk    EventType = "message:chunk"
	EventMessageDone     EventType = "message:done"
	EventSystemDiscovery EventType = "system:discovery"
	EventError           EventType = "error"
)

// ValidateEventType validates if a string is a valid event type.
func ValidateEventType(eventType string) (EventType, bool) {
	switch EventType(eventType) {
	case EventAgentSpawn, EventAgentThinking, EventAgentTool, EventAgentStatus,
		EventAgentResult, EventAgentQuestion, EventMessageChunk, EventMessageDone,
		EventSystemDiscovery, EventError:
		return EventType(eventType), true
	default:
		return "", false
	}
}

// String returns the string representation of EventType.
func (e EventType) String() string {
	return string(e)
}

// AgentStatus is the lifecycle status reported by agent:status events.
type AgentStatus string

const (
	StatusSpawning   AgentStatus = "spawning"
	StatusThinking   AgentStatus = "thinking"
	StatusSearching  AgentStatus = "searching"
	StatusValidating AgentStatus = "validating"
	StatusDone       AgentStatus = "done"
	StatusError      AgentStatus = "error"
)

// ToolStatus is the execution status reported by agent:tool events.
type ToolStatus string

const (
	ToolRunning ToolStatus = "running"
	ToolDone    ToolStatus = "done"
)

// SpawnPayload announces a new agent joining the run.
type SpawnPayload struct {
	AgentID       string    `json:"agentId"`
	Name          string    `json:"name"`
	AgentType     AgentType `json:"agentType"`
	Color         string    `json:"color,omitempty"`
	Task          string    `json:"task"`
	ParentAgentID string    `json:"parentAgentId,omitempty"`
	Depth         int       `json:"depth,omitempty"`
}

// ThinkingPayload surfaces an agent's intermediate reasoning note.
type ThinkingPayload struct {
	AgentID string `json:"agentId"`
	Thought string `json:"thought"`
}

// ToolPayload reports a tool invocation by an agent.
type ToolPayload struct {
	AgentID    string     `json:"agentId"`
	Tool       string     `json:"tool"`
	Input      string     `json:"input"`
	Status     ToolStatus `json:"status"`
	Output     string     `json:"output,omitempty"`
	TokensUsed int        `json:"tokensUsed,omitempty"`
	DurationMs int64      `json:"durationMs,omitempty"`
}

// StatusPayload reports an agent lifecycle transition.
type StatusPayload struct {
	AgentID string      `json:"agentId"`
	Status  AgentStatus `json:"status"`
}

// ResultPayload is the final event for an agent: its one-line outcome.
type ResultPayload struct {
	AgentID string `json:"agentId"`
	Summary string `json:"summary"`
}

// QuestionPayload asks the user to choose between options mid-run.
type QuestionPayload struct {
	AgentID     string   `json:"agentId"`
	QuestionID  string   `json:"questionId"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AllowCustom bool     `json:"allowCustom"`
}

// ChunkPayload carries one increment of the streamed response text.
type ChunkPayload struct {
	Content string `json:"content"`
}

// DonePayload is the terminal event of a successful run.
type DonePayload struct {
	Citations       []Citation        `json:"citations"`
	Commands        []CommandProposal `json:"commands,omitempty"`
	TotalTokensUsed int               `json:"totalTokensUsed,omitempty"`
	AgentMetrics    []AgentMetric     `json:"agentMetrics,omitempty"`
}

// DiscoveryPayload proposes read-only discovery commands the UI may offer to
// run in order to fill in missing system facts.
type DiscoveryPayload struct {
	AgentID  string   `json:"agentId"`
	Commands []string `json:"commands"`
	Prompt   string   `json:"prompt"`
}

// ErrorPayload is the terminal event of a failed run.
type ErrorPayload struct {
	Message string `json:"message"`
}

// AgentEvent is the tagged union streamed to the caller, one case per Type.
// Events are write-once: once emitted they are never mutated or retracted.
// Seq is monotonic within a run so consumers can verify ordering.
type AgentEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
	RunID     string    `json:"runId,omitempty"`

	// Exactly one payload is non-nil for a given Type.
	Spawn     *SpawnPayload     `json:"spawn,omitempty"`
	Thinking  *ThinkingPayload  `json:"thinking,omitempty"`
	Tool      *ToolPayload      `json:"tool,omitempty"`
	Status    *StatusPayload    `json:"status,omitempty"`
	Result    *ResultPayload    `json:"result,omitempty"`
	Question  *QuestionPayload  `json:"question,omitempty"`
	Chunk     *ChunkPayload     `json:"chunk,omitempty"`
	Done      *DonePayload      `json:"done,omitempty"`
	Discovery *DiscoveryPayload `json:"discovery,omitempty"`
	Error     *ErrorPayload     `json:"error,omitempty"`
}

// payload returns the populated payload for the event's type. The switch is
// exhaustive over EventType; adding an event type without extending it is a
// compile-time-visible omission at the serialization boundary.
func (e *AgentEvent) payload() (any, error) {
	switch e.Type {
	case EventAgentSpawn:
		return e.Spawn, nil
	case EventAgentThinking:
		return e.Thinking, nil
	case EventAgentTool:
		return e.Tool, nil
	case EventAgentStatus:
		return e.Status, nil
	case EventAgentResult:
		return e.Result, nil
	case EventAgentQuestion:
		return e.Question, nil
	case EventMessageChunk:
		return e.Chunk, nil
	case EventMessageDone:
		return e.Done, nil
	case EventSystemDiscovery:
		return e.Discovery, nil
	case EventError:
		return e.Error, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", e.Type)
	}
}

// Validate checks that the event carries exactly the payload its type
// requires.
func (e *AgentEvent) Validate() error {
	if _, valid := ValidateEventType(string(e.Type)); !valid {
		return fmt.Errorf("invalid event type: %s", e.Type)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event timestamp is required")
	}

	p, err := e.payload()
	if err != nil {
		return err
	}
	if isNilPayload(p) {
		return fmt.Errorf("event %s is missing its payload", e.Type)
	}

	populated := 0
	for _, candidate := range []any{
		e.Spawn, e.Thinking, e.Tool, e.Status, e.Result,
		e.Question, e.Chunk, e.Done, e.Discovery, e.Error,
	} {
		if !isNilPayload(candidate) {
			populated++
		}
	}
	if populated != 1 {
		return fmt.Errorf("event %s must carry exactly one payload, has %d", e.Type, populated)
	}
	return nil
}

func isNilPayload(p any) bool {
	switch v := p.(type) {
	case *SpawnPayload:
		return v == nil
	case *ThinkingPayload:
		return v == nil
	case *ToolPayload:
		return v == nil
	case *StatusPayload:
		return v == nil
	case *ResultPayload:
		return v == nil
	case *QuestionPayload:
		return v == nil
	case *ChunkPayload:
		return v == nil
	case *DonePayload:
		return v == nil
	case *DiscoveryPayload:
		return v == nil
	case *ErrorPayload:
		return v == nil
	default:
		return p == nil
	}
}

// MarshalWire serializes the event for the line-delimited wire protocol: the
// payload fields are flattened next to type/timestamp/seq rather than nested.
func (e *AgentEvent) MarshalWire() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	p, err := e.payload()
	if err != nil {
		return nil, err
	}

	payloadJSON, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Type, err)
	}

	flat := make(map[string]json.RawMessage)
	if err := json.Unmarshal(payloadJSON, &flat); err != nil {
		return nil, fmt.Errorf("failed to flatten %s payload: %w", e.Type, err)
	}

	typeJSON, _ := json.Marshal(e.Type)
	tsJSON, _ := json.Marshal(e.Timestamp)
	seqJSON, _ := json.Marshal(e.Seq)
	flat["type"] = typeJSON
	flat["timestamp"] = tsJSON
	flat["seq"] = seqJSON
	if e.RunID != "" {
		runJSON, _ := json.Marshal(e.RunID)
		flat["runId"] = runJSON
	}

	return json.Marshal(flat)
}

// UnmarshalWire parses one wire-format line back into an AgentEvent.
func UnmarshalWire(data []byte) (*AgentEvent, error) {
	var head struct {
		Type      EventType `json:"type"`
		Timestamp time.Time `json:"timestamp"`
		Seq       uint64    `json:"seq"`
		RunID     string    `json:"runId"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}

	event := &AgentEvent{
		Type:      head.Type,
		Timestamp: head.Timestamp,
		Seq:       head.Seq,
		RunID:     head.RunID,
	}

	var unmarshalErr error
	switch head.Type {
	case EventAgentSpawn:
		event.Spawn = &SpawnPayload{}
		unmarshalErr = json.Unmarshal(data, event.Spawn)
	case EventAgentThinking:
		event.Thinking = &ThinkingPayload{}
		unmarshalErr = json.Unmarshal(data, event.Thinking)
	case EventAgentTool:
		event.Tool = &ToolPayload{}
		unmarshalErr = json.Unmarshal(data, event.Tool)
	case EventAgentStatus:
		event.Status = &StatusPayload{}
		unmarshalErr = json.Unmarshal(data, event.Status)
	case EventAgentResult:
		event.Result = &ResultPayload{}
		unmarshalErr = json.Unmarshal(data, event.Result)
	case EventAgentQuestion:
		event.Question = &QuestionPayload{}
		unmarshalErr = json.Unmarshal(data, event.Question)
	case EventMessageChunk:
		event.Chunk = &ChunkPayload{}
		unmarshalErr = json.Unmarshal(data, event.Chunk)
	case EventMessageDone:
		event.Done = &DonePayload{}
		unmarshalErr = json.Unmarshal(data, event.Done)
	case EventSystemDiscovery:
		event.Discovery = &DiscoveryPayload{}
		unmarshalErr = json.Unmarshal(data, event.Discovery)
	case EventError:
		event.Error = &ErrorPayload{}
		unmarshalErr = json.Unmarshal(data, event.Error)
	default:
		return nil, fmt.Errorf("unknown event type: %s", head.Type)
	}
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", head.Type, unmarshalErr)
	}

	return event, nil
}

// AgentID returns the agent the event belongs to, or "" for run-level events
// (message:chunk, message:done, error).
func (e *AgentEvent) AgentID() string {
	switch e.Type {
	case EventAgentSpawn:
		return e.Spawn.AgentID
	case EventAgentThinking:
		return e.Thinking.AgentID
	case EventAgentTool:
		return e.Tool.AgentID
	case EventAgentStatus:
		return e.Status.AgentID
	case EventAgentResult:
		return e.Result.AgentID
	case EventAgentQuestion:
		return e.Question.AgentID
	case EventSystemDiscovery:
		return e.Discovery.AgentID
	case EventMessageChunk, EventMessageDone, EventError:
		return ""
	default:
		return ""
	}
}

// Event constructors. Timestamp and Seq are stamped by the stream at emit
// time so ordering is assigned in exactly one place.

// NewSpawnEvent creates an agent:spawn event.
func NewSpawnEvent(p SpawnPayload) *AgentEvent {
	return &AgentEvent{Type: EventAgentSpawn, Spawn: &p}
}

// NewThinkingEvent creates an agent:thinking event.
func NewThinkingEvent(agentID, thought string) *AgentEvent {
	return &AgentEvent{Type: EventAgentThinking, Thinking: &ThinkingPayload{AgentID: agentID, Thought: thought}}
}

// NewToolEvent creates an agent:tool event.
func NewToolEvent(p ToolPayload) *AgentEvent {
	return &AgentEvent{Type: EventAgentTool, Tool: &p}
}

// NewStatusEvent creates an agent:status event.
func NewStatusEvent(agentID string, status AgentStatus) *AgentEvent {
	return &AgentEvent{Type: EventAgentStatus, Status: &StatusPayload{AgentID: agentID, Status: status}}
}

// NewResultEvent creates an agent:result event.
func NewResultEvent(agentID, summary string) *AgentEvent {
	return &AgentEvent{Type: EventAgentResult, Result: &ResultPayload{AgentID: agentID, Summary: summary}}
}

// NewQuestionEvent creates an agent:question event.
func NewQuestionEvent(p QuestionPayload) *AgentEvent {
	return &AgentEvent{Type: EventAgentQuestion, Question: &p}
}

// NewChunkEvent creates a message:chunk event.
func NewChunkEvent(content string) *AgentEvent {
	return &AgentEvent{Type: EventMessageChunk, Chunk: &ChunkPayload{Content: content}}
}

// NewDoneEvent creates a message:done event.
func NewDoneEvent(p DonePayload) *AgentEvent {
	return &AgentEvent{Type: EventMessageDone, Done: &p}
}

// NewDiscoveryEvent creates a system:discovery event.
func NewDiscoveryEvent(p DiscoveryPayload) *AgentEvent {
	return &AgentEvent{Type: EventSystemDiscovery, Discovery: &p}
}

// NewErrorEvent creates a terminal error event.
func NewErrorEvent(message string) *AgentEvent {
	return &AgentEvent{Type: EventError, Error: &ErrorPayload{Message: message}}
}
