// Package console renders session snapshots to a terminal. It is a pure
// projection: rendering the same snapshot twice prints nothing new, and no
// rendering decision ever feeds back into session state.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"voco/internal/timeline"
)

// Renderer prints the delta between the previous and current snapshot.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer

	lastConn     string
	lastAgent    string
	lastActivity string
	planGoal     string
	seenMessages map[string]bool
	seenTraces   map[string]timeline.TraceStatus
	stepStatus   map[string]timeline.StepStatus

	userColor   *color.Color
	agentColor  *color.Color
	systemColor *color.Color
	dimColor    *color.Color
	okColor     *color.Color
	failColor   *color.Color
}

// New creates a renderer writing to out. With colors disabled every style
// degrades to plain text.
func New(out io.Writer, colors bool) *Renderer {
	r := &Renderer{
		out:          out,
		seenMessages: make(map[string]bool),
		seenTraces:   make(map[string]timeline.TraceStatus),
		stepStatus:   make(map[string]timeline.StepStatus),
		userColor:    color.New(color.FgCyan, color.Bold),
		agentColor:   color.New(color.FgGreen),
		systemColor:  color.New(color.FgYellow),
		dimColor:     color.New(color.Faint),
		okColor:      color.New(color.FgGreen),
		failColor:    color.New(color.FgRed),
	}
	if !colors {
		for _, c := range []*color.Color{
			r.userColor, r.agentColor, r.systemColor, r.dimColor, r.okColor, r.failColor,
		} {
			c.DisableColor()
		}
	}
	return r
}

// Render prints everything that changed since the previous call.
func (r *Renderer) Render(s *timeline.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ConnState != r.lastConn {
		r.lastConn = s.ConnState
		r.dimColor.Fprintf(r.out, "-- %s --\n", s.ConnState)
	}
	if s.AgentStatus != r.lastAgent || s.AgentActivity != r.lastActivity {
		r.lastAgent = s.AgentStatus
		r.lastActivity = s.AgentActivity
		if s.AgentStatus != "" {
			line := s.AgentStatus
			if s.AgentActivity != "" {
				line += ": " + s.AgentActivity
			}
			r.dimColor.Fprintf(r.out, "[%s]\n", line)
		}
	}

	r.renderPlan(s)
	r.renderMessages(s)
}

func (r *Renderer) renderPlan(s *timeline.Session) {
	if s.Plan == nil {
		r.planGoal = ""
		return
	}
	if s.Plan.Goal != r.planGoal {
		r.planGoal = s.Plan.Goal
		r.systemColor.Fprintf(r.out, "plan: %s\n", s.Plan.Goal)
		if s.Plan.RequiresApproval {
			r.systemColor.Fprintln(r.out, "  (awaiting approval: /approve or /reject)")
		}
	}

	for _, in := range s.Timeline {
		if in.ID != s.Plan.InteractionID {
			continue
		}
		for _, step := range in.Steps {
			key := in.ID + "/" + step.ID
			if r.stepStatus[key] == step.Status {
				continue
			}
			r.stepStatus[key] = step.Status
			fmt.Fprintf(r.out, "  %s %s\n", r.stepMark(step.Status), step.Title)
		}
	}
}

func (r *Renderer) stepMark(status timeline.StepStatus) string {
	switch status {
	case timeline.StepDone:
		return r.okColor.Sprint("[done]")
	case timeline.StepFailed:
		return r.failColor.Sprint("[fail]")
	case timeline.StepInProgress:
		return r.systemColor.Sprint("[....]")
	default:
		return r.dimColor.Sprint("[    ]")
	}
}

func (r *Renderer) renderMessages(s *timeline.Session) {
	for _, msg := range s.Messages {
		for _, tr := range msg.Traces {
			if r.seenTraces[tr.CallID] == tr.Status {
				continue
			}
			r.seenTraces[tr.CallID] = tr.Status
			label := tr.Label
			if label == "" {
				label = tr.ToolName
			}
			switch tr.Status {
			case timeline.TraceRunning:
				r.dimColor.Fprintf(r.out, "  * %s\n", label)
			case timeline.TraceFailure:
				r.failColor.Fprintf(r.out, "  * %s failed\n", label)
			default:
				r.dimColor.Fprintf(r.out, "  * %s ok\n", label)
			}
		}

		// Chat text prints once, when the message is complete.
		if !msg.Final || r.seenMessages[msg.ID] {
			continue
		}
		r.seenMessages[msg.ID] = true
		switch msg.Role {
		case timeline.RoleUser:
			r.userColor.Fprintf(r.out, "you> %s\n", msg.Text)
		case timeline.RoleSystem:
			r.systemColor.Fprintf(r.out, "!! %s\n", msg.Text)
		default:
			r.agentColor.Fprintf(r.out, "agent> %s\n", msg.Text)
		}
	}
}
