package timeline

import (
	"fmt"
	"sync"
	"time"

	"voco/internal/logging"
	"voco/internal/observability"
	"voco/internal/protocol"
)

// Store holds the session aggregate behind a single-writer mutation API.
// All writes go through Apply or one of the local-action setters; readers
// get deep-copied snapshots and never observe a partial mutation.
type Store struct {
	mu      sync.RWMutex
	session *Session
	byID    map[string]*Interaction
	seq     int

	log     *logging.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewStore creates an empty session store.
func NewStore(metrics *observability.Metrics) *Store {
	if metrics == nil {
		metrics = observability.Nop()
	}
	return &Store{
		session: &Session{
			ConnState:  "disconnected",
			TTSEnabled: true,
			Timeline:   []*Interaction{},
			Messages:   []*ChatMessage{},
		},
		byID:    make(map[string]*Interaction),
		log:     logging.ForComponent("timeline"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Snapshot returns a deep copy of the current session.
func (s *Store) Snapshot() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.clone()
}

// SetConnState records the transport's logical status.
func (s *Store) SetConnState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.ConnState = state
}

// Apply folds one inbound message into the session. Unknown or malformed
// events are ignored; Apply never fails in a way that would halt processing
// of later events.
func (s *Store) Apply(msg protocol.Message) {
	if msg == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.EventsApplied.WithLabelValues(string(msg.MessageType())).Inc()

	switch m := msg.(type) {
	case protocol.Status:
		s.session.AgentStatus = m.Status
		s.session.AgentActivity = m.Message
	case protocol.Transcript:
		s.applyTranscript(m)
	case protocol.Response:
		s.applyResponse(m)
	case protocol.Error:
		s.applyError(m)
	case protocol.PlanCreated:
		s.applyPlan(m.Payload, false)
	case protocol.StepStart:
		s.applyStepStart(m)
	case protocol.StepComplete:
		s.advanceStep(m.InteractionID, m.Payload, StepDone)
	case protocol.Command:
		s.applyCommand(m)
	case protocol.AgentAction:
		s.applyAgentAction(m)
	case protocol.Debug:
		s.applyDebug(m)
	case protocol.TTSStatus:
		s.session.Speaking = m.Status == "speaking" || m.Status == "started"
	default:
		// Bridge traffic (tool_usage / tool_result) and outbound shapes do
		// not touch the timeline.
	}
}

// upsert returns the interaction with the given id, creating it in timeline
// order on first reference. Empty ids fall back to the system interaction.
func (s *Store) upsert(id string) *Interaction {
	if id == "" {
		id = SystemInteractionID
	}
	if in, ok := s.byID[id]; ok {
		return in
	}
	in := &Interaction{ID: id, Timestamp: s.now(), Steps: []*Step{}, Logs: []LogEntry{}}
	s.byID[id] = in
	s.session.Timeline = append(s.session.Timeline, in)
	return in
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Store) applyTranscript(m protocol.Transcript) {
	// Interim transcripts overwrite the previous interim; a final one seals
	// the message so the next utterance starts fresh.
	if n := len(s.session.Messages); n > 0 {
		last := s.session.Messages[n-1]
		if last.Role == RoleUser && !last.Final {
			last.Text = m.Text
			last.Final = m.IsFinal
			return
		}
	}
	s.session.Messages = append(s.session.Messages, &ChatMessage{
		ID:        s.nextID("msg"),
		Role:      RoleUser,
		Text:      m.Text,
		Final:     m.IsFinal,
		Timestamp: s.now(),
	})
}

// currentAssistant returns the open assistant message for the interaction,
// creating one when the stream has no open message to append to.
func (s *Store) currentAssistant(interactionID string) *ChatMessage {
	for i := len(s.session.Messages) - 1; i >= 0; i-- {
		m := s.session.Messages[i]
		if m.Role != RoleAssistant {
			continue
		}
		if m.Final {
			break
		}
		if interactionID == "" || m.InteractionID == "" || m.InteractionID == interactionID {
			return m
		}
	}
	msg := &ChatMessage{
		ID:            s.nextID("msg"),
		Role:          RoleAssistant,
		InteractionID: interactionID,
		Timestamp:     s.now(),
	}
	s.session.Messages = append(s.session.Messages, msg)
	return msg
}

func (s *Store) applyResponse(m protocol.Response) {
	msg := s.currentAssistant(m.ID)
	if m.IsDelta {
		msg.Text += m.Text
	} else if m.Text != "" {
		msg.Text = m.Text
	}
	if m.IsFinal {
		msg.Final = true
	}
}

func (s *Store) applyError(m protocol.Error) {
	text := m.Error
	if text == "" {
		text = m.Message
	}
	s.session.Messages = append(s.session.Messages, &ChatMessage{
		ID:            s.nextID("msg"),
		Role:          RoleSystem,
		Text:          text,
		Final:         true,
		InteractionID: m.InteractionID,
		Timestamp:     s.now(),
	})

	in := s.upsert(m.InteractionID)
	in.Logs = append(in.Logs, LogEntry{
		ID:        s.nextID("log"),
		Timestamp: s.now(),
		Type:      EntryError,
		Payload:   text,
	})
}

// applyPlan upserts the owning interaction and reconciles its steps against
// the incoming plan: steps already known keep their logs and never regress
// status, new steps start pending with empty logs.
func (s *Store) applyPlan(plan protocol.Plan, requiresApproval bool) {
	in := s.upsert(plan.InteractionID)
	if plan.Goal != "" {
		in.Title = plan.Goal
	}

	for _, ps := range plan.Steps {
		incoming := StepStatus(ps.Status)
		if incoming == "" {
			incoming = StepPending
		}
		step := in.step(ps.ID)
		if step == nil {
			in.Steps = append(in.Steps, &Step{
				ID:          ps.ID,
				Title:       ps.Title,
				Description: ps.Description,
				Status:      incoming,
				Result:      ps.Result,
				Logs:        []LogEntry{},
			})
			continue
		}
		if ps.Title != "" {
			step.Title = ps.Title
		}
		if ps.Description != "" {
			step.Description = ps.Description
		}
		if statusRank(incoming) > statusRank(step.Status) {
			step.Status = incoming
		}
		if ps.Result != "" {
			step.Result = ps.Result
		}
	}

	s.session.Plan = &ExecutionPlan{
		InteractionID:    in.ID,
		Goal:             plan.Goal,
		RequiresApproval: requiresApproval || plan.RequiresApproval,
	}
}

func (s *Store) applyStepStart(m protocol.StepStart) {
	in := s.findStepOwner(m.InteractionID, m.Payload.ID)
	if in == nil {
		in = s.upsert(m.InteractionID)
	}
	step := in.step(m.Payload.ID)
	if step == nil {
		title := m.Payload.Title
		if title == "" {
			title = m.Payload.ID
		}
		step = &Step{ID: m.Payload.ID, Title: title, Status: StepPending, Logs: []LogEntry{}}
		in.Steps = append(in.Steps, step)
	} else if m.Payload.Title != "" {
		step.Title = m.Payload.Title
	}
	if statusRank(StepInProgress) > statusRank(step.Status) {
		step.Status = StepInProgress
	}

	// Display hint: the running step is the only expanded one.
	for _, other := range in.Steps {
		other.Expanded = other.ID == step.ID
	}
}

// findStepOwner locates the interaction holding a step. With an explicit
// interaction id only that interaction is searched; without one, timeline
// order decides.
func (s *Store) findStepOwner(interactionID, stepID string) *Interaction {
	if interactionID != "" {
		if in, ok := s.byID[interactionID]; ok && in.step(stepID) != nil {
			return in
		}
		return nil
	}
	for _, in := range s.session.Timeline {
		if in.step(stepID) != nil {
			return in
		}
	}
	return nil
}

// advanceStep moves a step's status forward. References to steps nobody
// knows are presumed stale and dropped.
func (s *Store) advanceStep(interactionID string, res protocol.StepResult, fallback StepStatus) {
	in := s.findStepOwner(interactionID, res.ID)
	if in == nil {
		s.log.Debug("dropping update for unknown step %q", res.ID)
		return
	}
	step := in.step(res.ID)

	incoming := StepStatus(res.Status)
	if incoming == "" {
		incoming = fallback
	}
	if statusRank(incoming) > statusRank(step.Status) {
		step.Status = incoming
	}
	if res.Result != "" {
		step.Result = res.Result
	}
	if statusRank(step.Status) >= statusRank(StepDone) {
		step.Expanded = false
	}
}

func (s *Store) applyCommand(m protocol.Command) {
	switch m.Command {
	case protocol.CommandUpdatePlan:
		if m.Plan != nil {
			plan := *m.Plan
			if plan.InteractionID == "" {
				plan.InteractionID = m.InteractionID
			}
			s.applyPlan(plan, false)
		}
	case protocol.CommandRequestApproval:
		if m.Plan != nil {
			plan := *m.Plan
			if plan.InteractionID == "" {
				plan.InteractionID = m.InteractionID
			}
			s.applyPlan(plan, true)
		}
	case protocol.CommandUpdateStep:
		if m.Step != nil {
			s.advanceStep(m.InteractionID, *m.Step, StepInProgress)
		}
	case protocol.CommandSystemStatus:
		s.session.SystemHealth = m.SystemStatus
	case protocol.CommandStopRecording:
		s.session.Recording = false
	default:
		s.log.Debug("ignoring unknown command %q", m.Command)
	}
}

func (s *Store) applyAgentAction(m protocol.AgentAction) {
	switch m.ActionType {
	case protocol.ActionToolStart:
		if m.CallID == "" {
			return
		}
		msg := s.currentAssistant(m.InteractionID)
		for _, tr := range msg.Traces {
			if tr.CallID == m.CallID {
				return
			}
		}
		msg.Traces = append(msg.Traces, &ToolTrace{
			CallID:   m.CallID,
			ToolName: m.ToolName,
			Label:    m.ActionLabel,
			Details:  m.ActionDetails,
			Status:   TraceRunning,
		})
	case protocol.ActionToolEnd:
		trace := s.findTrace(m.CallID)
		if trace == nil {
			return
		}
		if m.ActionStatus == protocol.ActionStatusFailure {
			trace.Status = TraceFailure
		} else {
			trace.Status = TraceSuccess
		}
		if m.ActionDetails != "" {
			trace.Details = m.ActionDetails
		}
	case protocol.ActionThinking, protocol.ActionInfo:
		s.session.AgentActivity = m.ActionLabel
	}
}

func (s *Store) findTrace(callID string) *ToolTrace {
	if callID == "" {
		return nil
	}
	for i := len(s.session.Messages) - 1; i >= 0; i-- {
		for _, tr := range s.session.Messages[i].Traces {
			if tr.CallID == callID {
				return tr
			}
		}
	}
	return nil
}

func (s *Store) applyDebug(m protocol.Debug) {
	in := s.upsert(m.InteractionID)
	entry := LogEntry{
		ID:        s.nextID("log"),
		Timestamp: s.now(),
		Type:      EntryDebug,
		Category:  m.Category,
		Payload:   m.Data,
	}
	if m.StepID != "" {
		if step := in.step(m.StepID); step != nil {
			step.Logs = append(step.Logs, entry)
			return
		}
	}
	in.Logs = append(in.Logs, entry)
}

// Local actions below reflect user input optimistically; the agent's own
// events remain authoritative.

// AddUserMessage appends typed input to the conversation.
func (s *Store) AddUserMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Messages = append(s.session.Messages, &ChatMessage{
		ID:        s.nextID("msg"),
		Role:      RoleUser,
		Text:      text,
		Final:     true,
		Timestamp: s.now(),
	})
}

// SetRecording flips the microphone flag.
func (s *Store) SetRecording(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Recording = on
}

// SetTTSEnabled flips speech output.
func (s *Store) SetTTSEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.TTSEnabled = on
}

// SetPlanApproved records the user's approval decision. Rejection clears
// the plan.
func (s *Store) SetPlanApproved(approved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.Plan == nil {
		return
	}
	if approved {
		s.session.Plan.Approved = true
		s.session.Plan.RequiresApproval = false
	} else {
		s.session.Plan = nil
	}
}
