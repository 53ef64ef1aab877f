package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// ErrUnknownType marks a message whose discriminator is not part of the
// protocol. Callers drop the message and keep the connection alive.
var ErrUnknownType = errors.New("unknown message type")

type envelope struct {
	Type Type `json:"type"`
}

// Decode parses a raw frame into its concrete message type. Frames that are
// not valid JSON get one repair attempt before being rejected; agent-side
// code paths occasionally emit model-produced JSON with trailing commas or
// unquoted keys.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return nil, fmt.Errorf("parse frame: %w", err)
		}
		data = []byte(repaired)
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("parse repaired frame: %w", err)
		}
	}

	switch env.Type {
	case TypeStatus:
		return decodeAs[Status](data)
	case TypeTranscript:
		return decodeAs[Transcript](data)
	case TypeResponse:
		return decodeAs[Response](data)
	case TypeError:
		return decodeAs[Error](data)
	case TypeDebug:
		return decodeAs[Debug](data)
	case TypePlanCreated:
		return decodeAs[PlanCreated](data)
	case TypeStepStart:
		return decodeAs[StepStart](data)
	case TypeStepComplete:
		return decodeAs[StepComplete](data)
	case TypeCommand:
		return decodeCommand(data)
	case TypeAgentAction:
		return decodeAs[AgentAction](data)
	case TypeToolUsage:
		return decodeAs[ToolUsage](data)
	case TypeToolResult:
		return decodeAs[ToolResult](data)
	case TypeTTSStatus:
		return decodeAs[TTSStatus](data)
	case TypeTextInput:
		return decodeAs[TextInput](data)
	case TypeToggleTTS:
		return decodeAs[ToggleTTS](data)
	case TypeApprovePlan, TypeRejectPlan, TypeStopGeneration,
		TypeStartRecording, TypeStopRecording:
		return Control{Type: env.Type}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAs[T Message](data []byte) (Message, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode %T: %w", msg, err)
	}
	return msg, nil
}

// commandEnvelope defers payload decoding until the nested command is known.
// The agent sends the same "payload" key with command-specific shapes.
type commandEnvelope struct {
	Type          Type            `json:"type"`
	Command       string          `json:"command"`
	InteractionID string          `json:"interaction_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func decodeCommand(data []byte) (Message, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	cmd := Command{
		Type:          TypeCommand,
		Command:       env.Command,
		InteractionID: env.InteractionID,
	}

	switch env.Command {
	case CommandUpdatePlan, CommandRequestApproval:
		if len(env.Payload) > 0 {
			var plan Plan
			if err := json.Unmarshal(env.Payload, &plan); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", env.Command, err)
			}
			cmd.Plan = &plan
		}
	case CommandUpdateStep:
		if len(env.Payload) > 0 {
			var step StepResult
			if err := json.Unmarshal(env.Payload, &step); err != nil {
				return nil, fmt.Errorf("decode update_step payload: %w", err)
			}
			cmd.Step = &step
		}
	case CommandSystemStatus:
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &cmd.SystemStatus); err != nil {
				return nil, fmt.Errorf("decode system_status payload: %w", err)
			}
		}
	case CommandStopRecording:
		// No payload.
	default:
		// Unrecognized nested commands pass through with the raw command
		// string; the reducer ignores what it does not know.
	}

	return cmd, nil
}

// Encode serializes a message for transmission.
func Encode(msg Message) ([]byte, error) {
	if cmd, ok := msg.(Command); ok {
		return encodeCommand(cmd)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), err)
	}
	return data, nil
}

func encodeCommand(cmd Command) ([]byte, error) {
	env := commandEnvelope{
		Type:          TypeCommand,
		Command:       cmd.Command,
		InteractionID: cmd.InteractionID,
	}
	var payload interface{}
	switch {
	case cmd.Plan != nil:
		payload = cmd.Plan
	case cmd.Step != nil:
		payload = cmd.Step
	case cmd.SystemStatus != nil:
		payload = cmd.SystemStatus
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode command payload: %w", err)
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return data, nil
}
