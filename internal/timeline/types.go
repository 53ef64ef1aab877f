// Package timeline folds the agent's event stream into the session view
// model: an ordered tree of Interaction -> Step -> LogEntry nodes plus the
// conversational message list. The fold is deterministic and idempotent per
// event id, so replaying a duplicate event never duplicates a node.
package timeline

import "time"

// StepStatus is the lifecycle state of a plan step. It only moves forward:
// pending -> in_progress -> done or failed.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepDone       StepStatus = "done"
	StepFailed     StepStatus = "failed"
)

// statusRank orders step statuses for the monotonic-advance rule. Terminal
// states share a rank so done never flips to failed or back.
func statusRank(s StepStatus) int {
	switch s {
	case StepInProgress:
		return 1
	case StepDone, StepFailed:
		return 2
	default:
		return 0
	}
}

// SystemInteractionID owns events that carry no interaction id.
const SystemInteractionID = "SYSTEM"

// EntryType categorizes a LogEntry.
type EntryType string

const (
	EntryInfo  EntryType = "info"
	EntryError EntryType = "error"
	EntryDebug EntryType = "debug"
)

// LogEntry is immutable once appended.
type LogEntry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EntryType   `json:"type"`
	Category  string      `json:"category,omitempty"`
	Payload   interface{} `json:"payload"`
}

// Step is one planned unit of work inside an Interaction.
type Step struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      StepStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	Expanded    bool       `json:"expanded"`
	Logs        []LogEntry `json:"logs"`
}

// Interaction is one user-agent engagement, a root node of the timeline.
type Interaction struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Steps     []*Step    `json:"steps"`
	Logs      []LogEntry `json:"logs"`
}

// step returns the step with the given id, or nil.
func (in *Interaction) step(id string) *Step {
	for _, s := range in.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// ExecutionPlan is the agent's current plan for an interaction. The steps
// themselves live on the owning Interaction; the plan records the goal and
// whether the user still has to approve it.
type ExecutionPlan struct {
	InteractionID    string `json:"interaction_id,omitempty"`
	Goal             string `json:"goal"`
	RequiresApproval bool   `json:"requires_approval,omitempty"`
	Approved         bool   `json:"approved,omitempty"`
}

// TraceStatus is the lifecycle state of a tool trace.
type TraceStatus string

const (
	TraceRunning TraceStatus = "running"
	TraceSuccess TraceStatus = "success"
	TraceFailure TraceStatus = "failure"
)

// ToolTrace records one capability call attached to a chat message,
// correlated by call id.
type ToolTrace struct {
	CallID   string      `json:"call_id"`
	ToolName string      `json:"tool_name"`
	Label    string      `json:"label,omitempty"`
	Details  string      `json:"details,omitempty"`
	Status   TraceStatus `json:"status"`
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one entry in the conversational list, outside the timeline
// tree. Assistant messages accumulate streamed deltas until final.
type ChatMessage struct {
	ID            string       `json:"id"`
	Role          Role         `json:"role"`
	Text          string       `json:"text"`
	Final         bool         `json:"final"`
	InteractionID string       `json:"interaction_id,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
	Traces        []*ToolTrace `json:"traces,omitempty"`
}

// Session is the root aggregate the view layers render. Snapshots returned
// by the store are deep copies and safe to read concurrently.
type Session struct {
	ConnState     string                 `json:"conn_state"`
	AgentStatus   string                 `json:"agent_status,omitempty"`
	AgentActivity string                 `json:"agent_activity,omitempty"`
	Plan          *ExecutionPlan         `json:"plan,omitempty"`
	Timeline      []*Interaction         `json:"timeline"`
	Messages      []*ChatMessage         `json:"messages"`
	Recording     bool                   `json:"recording"`
	Speaking      bool                   `json:"speaking"`
	TTSEnabled    bool                   `json:"tts_enabled"`
	SystemHealth  map[string]interface{} `json:"system_health,omitempty"`
}

func (s *Session) clone() *Session {
	out := &Session{
		ConnState:     s.ConnState,
		AgentStatus:   s.AgentStatus,
		AgentActivity: s.AgentActivity,
		Recording:     s.Recording,
		Speaking:      s.Speaking,
		TTSEnabled:    s.TTSEnabled,
	}
	if s.Plan != nil {
		plan := *s.Plan
		out.Plan = &plan
	}
	out.Timeline = make([]*Interaction, len(s.Timeline))
	for i, in := range s.Timeline {
		out.Timeline[i] = in.clone()
	}
	out.Messages = make([]*ChatMessage, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.clone()
	}
	if s.SystemHealth != nil {
		out.SystemHealth = make(map[string]interface{}, len(s.SystemHealth))
		for k, v := range s.SystemHealth {
			out.SystemHealth[k] = v
		}
	}
	return out
}

func (in *Interaction) clone() *Interaction {
	out := &Interaction{
		ID:        in.ID,
		Title:     in.Title,
		Timestamp: in.Timestamp,
		Logs:      append([]LogEntry(nil), in.Logs...),
	}
	out.Steps = make([]*Step, len(in.Steps))
	for i, s := range in.Steps {
		step := *s
		step.Logs = append([]LogEntry(nil), s.Logs...)
		out.Steps[i] = &step
	}
	return out
}

func (m *ChatMessage) clone() *ChatMessage {
	out := *m
	out.Traces = make([]*ToolTrace, len(m.Traces))
	for i, tr := range m.Traces {
		trace := *tr
		out.Traces[i] = &trace
	}
	return &out
}
