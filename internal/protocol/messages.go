// Package protocol defines the JSON wire messages exchanged with the agent
// process over the WebSocket channel. Every message carries a mandatory
// "type" discriminator; Decode maps it onto one concrete Go type so that an
// unhandled message kind is a visible gap in a type switch rather than a
// silent runtime branch.
package protocol

// Type is the wire discriminator of a message.
type Type string

// Inbound message types (agent process -> client).
const (
	TypeStatus       Type = "status"
	TypeTranscript   Type = "transcript"
	TypeResponse     Type = "response"
	TypeError        Type = "error"
	TypeDebug        Type = "debug"
	TypePlanCreated  Type = "plan_created"
	TypeStepStart    Type = "step_start"
	TypeStepComplete Type = "step_complete"
	TypeCommand      Type = "command"
	TypeAgentAction  Type = "agent_action"
	TypeToolUsage    Type = "tool_usage"
	TypeToolResult   Type = "tool_result"
	TypeTTSStatus    Type = "tts_status"
)

// Outbound message types (client -> agent process).
const (
	TypeTextInput      Type = "text_input"
	TypeApprovePlan    Type = "approve_plan"
	TypeRejectPlan     Type = "reject_plan"
	TypeStopGeneration Type = "stop_generation"
	TypeStartRecording Type = "start_recording"
	TypeStopRecording  Type = "stop_recording"
	TypeToggleTTS      Type = "toggle_tts"
)

// Nested commands carried by a Command message.
const (
	CommandUpdatePlan      = "update_plan"
	CommandUpdateStep      = "update_step"
	CommandRequestApproval = "request_approval"
	CommandSystemStatus    = "system_status"
	CommandStopRecording   = "stop_recording"
)

// Action types and statuses carried by an AgentAction message.
const (
	ActionThinking  = "thinking"
	ActionToolStart = "tool_start"
	ActionToolEnd   = "tool_end"
	ActionInfo      = "info"

	ActionStatusRunning = "running"
	ActionStatusSuccess = "success"
	ActionStatusFailure = "failure"
)

// Message is implemented by every wire message.
type Message interface {
	MessageType() Type
}

// Status reports the agent's coarse state (ready, working, listening, error).
type Status struct {
	Type    Type   `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Transcript echoes recognized or typed user input back to the display.
type Transcript struct {
	Type    Type   `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// Response carries agent answer text, streamed as deltas and closed with a
// final marker. ID names the owning interaction.
type Response struct {
	Type    Type   `json:"type"`
	ID      string `json:"id,omitempty"`
	Text    string `json:"text"`
	IsDelta bool   `json:"is_delta"`
	IsFinal bool   `json:"is_final"`
}

// Error surfaces an agent-level failure to the user.
type Error struct {
	Type          Type   `json:"type"`
	Error         string `json:"error"`
	Message       string `json:"message,omitempty"`
	InteractionID string `json:"interaction_id,omitempty"`
}

// Debug is a structured log line addressed at the debug panel.
type Debug struct {
	Type          Type        `json:"type"`
	Category      string      `json:"category"`
	Data          interface{} `json:"data"`
	InteractionID string      `json:"interaction_id,omitempty"`
	StepID        string      `json:"step_id,omitempty"`
}

// Plan is the execution plan payload shared by PlanCreated and the
// update_plan / request_approval commands.
type Plan struct {
	InteractionID    string     `json:"interaction_id,omitempty"`
	Goal             string     `json:"goal"`
	Steps            []PlanStep `json:"steps"`
	RequiresApproval bool       `json:"requires_approval,omitempty"`
}

// PlanStep is one planned unit of work.
type PlanStep struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Result      string `json:"result,omitempty"`
}

// PlanCreated announces a freshly generated plan.
type PlanCreated struct {
	Type    Type `json:"type"`
	Payload Plan `json:"payload"`
}

// StepStart marks a plan step entering execution.
type StepStart struct {
	Type          Type     `json:"type"`
	InteractionID string   `json:"interaction_id,omitempty"`
	Payload       PlanStep `json:"payload"`
}

// StepResult is the payload of StepComplete and the update_step command.
type StepResult struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Result string `json:"result,omitempty"`
}

// StepComplete marks a plan step as finished.
type StepComplete struct {
	Type          Type       `json:"type"`
	InteractionID string     `json:"interaction_id,omitempty"`
	Payload       StepResult `json:"payload"`
}

// Command wraps the secondary command channel. Exactly one payload field is
// set, chosen by Command.
type Command struct {
	Type          Type   `json:"type"`
	Command       string `json:"command"`
	InteractionID string `json:"interaction_id,omitempty"`

	Plan         *Plan                  `json:"-"`
	Step         *StepResult            `json:"-"`
	SystemStatus map[string]interface{} `json:"-"`
}

// AgentAction reports tool and reasoning activity tied to the current
// interaction.
type AgentAction struct {
	Type          Type                   `json:"type"`
	ActionType    string                 `json:"action_type"`
	ActionLabel   string                 `json:"action_label,omitempty"`
	ActionDetails string                 `json:"action_details,omitempty"`
	ActionStatus  string                 `json:"action_status,omitempty"`
	ToolName      string                 `json:"tool_name,omitempty"`
	InputData     map[string]interface{} `json:"input_data,omitempty"`
	CallID        string                 `json:"call_id,omitempty"`
	InteractionID string                 `json:"interaction_id,omitempty"`
	StepID        string                 `json:"step_id,omitempty"`
}

// ToolUsage is a capability request correlated by CallID.
type ToolUsage struct {
	Type      Type                   `json:"type"`
	ToolName  string                 `json:"tool_name"`
	InputData map[string]interface{} `json:"input_data"`
	CallID    string                 `json:"call_id"`
}

// ToolResult answers a ToolUsage. Output is a string or structured value; a
// failed execution travels as "Error: <message>".
type ToolResult struct {
	Type   Type        `json:"type"`
	CallID string      `json:"call_id"`
	Output interface{} `json:"output"`
}

// TTSStatus reports speech playback state.
type TTSStatus struct {
	Type      Type   `json:"type"`
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
}

// TextInput submits typed user input.
type TextInput struct {
	Type Type   `json:"type"`
	Text string `json:"text"`
}

// Control is the shape shared by the bare outbound control messages.
type Control struct {
	Type Type `json:"type"`
}

// ToggleTTS enables or disables speech output.
type ToggleTTS struct {
	Type    Type `json:"type"`
	Enabled bool `json:"enabled"`
}

func (m Status) MessageType() Type       { return TypeStatus }
func (m Transcript) MessageType() Type   { return TypeTranscript }
func (m Response) MessageType() Type     { return TypeResponse }
func (m Error) MessageType() Type        { return TypeError }
func (m Debug) MessageType() Type        { return TypeDebug }
func (m PlanCreated) MessageType() Type  { return TypePlanCreated }
func (m StepStart) MessageType() Type    { return TypeStepStart }
func (m StepComplete) MessageType() Type { return TypeStepComplete }
func (m Command) MessageType() Type      { return TypeCommand }
func (m AgentAction) MessageType() Type  { return TypeAgentAction }
func (m ToolUsage) MessageType() Type    { return TypeToolUsage }
func (m ToolResult) MessageType() Type   { return TypeToolResult }
func (m TTSStatus) MessageType() Type    { return TypeTTSStatus }
func (m TextInput) MessageType() Type    { return TypeTextInput }
func (m Control) MessageType() Type      { return m.Type }
func (m ToggleTTS) MessageType() Type    { return TypeToggleTTS }

// NewTextInput builds an outbound text_input message.
func NewTextInput(text string) TextInput {
	return TextInput{Type: TypeTextInput, Text: text}
}

// NewControl builds one of the bare outbound control messages.
func NewControl(t Type) Control {
	return Control{Type: t}
}

// NewToggleTTS builds an outbound toggle_tts message.
func NewToggleTTS(enabled bool) ToggleTTS {
	return ToggleTTS{Type: TypeToggleTTS, Enabled: enabled}
}

// NewToolUsage builds an outbound capability request.
func NewToolUsage(callID, toolName string, input map[string]interface{}) ToolUsage {
	return ToolUsage{Type: TypeToolUsage, CallID: callID, ToolName: toolName, InputData: input}
}

// NewToolResult builds an outbound capability result.
func NewToolResult(callID string, output interface{}) ToolResult {
	return ToolResult{Type: TypeToolResult, CallID: callID, Output: output}
}
