package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeStatus(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"status","status":"ready","message":"Connected"}`))
	require.NoError(t, err)

	status, ok := msg.(Status)
	require.True(t, ok)
	require.Equal(t, "ready", status.Status)
	require.Equal(t, "Connected", status.Message)
}

func TestDecodePlanCreated(t *testing.T) {
	raw := `{
		"type": "plan_created",
		"payload": {
			"interaction_id": "int-1",
			"goal": "Add retries to the uploader",
			"steps": [
				{"id": "1", "title": "Read uploader", "status": "pending"},
				{"id": "2", "title": "Add retry loop", "status": "pending"}
			]
		}
	}`
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)

	plan, ok := msg.(PlanCreated)
	require.True(t, ok)
	require.Equal(t, "Add retries to the uploader", plan.Payload.Goal)
	require.Len(t, plan.Payload.Steps, 2)
	require.Equal(t, "1", plan.Payload.Steps[0].ID)
}

func TestDecodeCommandUpdateStep(t *testing.T) {
	raw := `{"type":"command","command":"update_step","payload":{"id":"2","status":"done","result":"ok"}}`
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)

	cmd, ok := msg.(Command)
	require.True(t, ok)
	require.Equal(t, CommandUpdateStep, cmd.Command)
	require.NotNil(t, cmd.Step)
	require.Equal(t, "2", cmd.Step.ID)
	require.Equal(t, "done", cmd.Step.Status)
	require.Nil(t, cmd.Plan)
}

func TestDecodeCommandSystemStatus(t *testing.T) {
	raw := `{"type":"command","command":"system_status","payload":{"llm":{"provider":"gemini"}}}`
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)

	cmd, ok := msg.(Command)
	require.True(t, ok)
	require.Contains(t, cmd.SystemStatus, "llm")
}

func TestDecodeToolMessages(t *testing.T) {
	usage, err := Decode([]byte(`{"type":"tool_usage","tool_name":"read_file","input_data":{"path":"main.go"},"call_id":"c1"}`))
	require.NoError(t, err)
	tu, ok := usage.(ToolUsage)
	require.True(t, ok)
	require.Equal(t, "read_file", tu.ToolName)
	require.Equal(t, "c1", tu.CallID)
	require.Equal(t, "main.go", tu.InputData["path"])

	result, err := Decode([]byte(`{"type":"tool_result","call_id":"c1","output":"package main"}`))
	require.NoError(t, err)
	tr, ok := result.(ToolResult)
	require.True(t, ok)
	require.Equal(t, "c1", tr.CallID)
	require.Equal(t, "package main", tr.Output)
}

func TestDecodeBareControls(t *testing.T) {
	for _, typ := range []Type{TypeApprovePlan, TypeRejectPlan, TypeStopGeneration} {
		msg, err := Decode([]byte(`{"type":"` + string(typ) + `"}`))
		require.NoError(t, err)
		require.Equal(t, typ, msg.MessageType())
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"telemetry_v9","data":1}`))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeRepairsSloppyJSON(t *testing.T) {
	// Trailing comma: invalid JSON that jsonrepair can fix.
	msg, err := Decode([]byte(`{"type":"status","status":"working",}`))
	require.NoError(t, err)
	status, ok := msg.(Status)
	require.True(t, ok)
	require.Equal(t, "working", status.Status)
}

func TestDecodeUnrepairableGarbage(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x01, 0xff})
	require.Error(t, err)
}

func TestEncodeDecodeCommandRoundTrip(t *testing.T) {
	plan := &Plan{Goal: "G", Steps: []PlanStep{{ID: "1", Title: "T"}}}
	data, err := Encode(Command{Type: TypeCommand, Command: CommandUpdatePlan, Plan: plan})
	require.NoError(t, err)

	msg, err := Decode(data)
	require.NoError(t, err)
	cmd, ok := msg.(Command)
	require.True(t, ok)
	require.Equal(t, CommandUpdatePlan, cmd.Command)
	require.NotNil(t, cmd.Plan)
	require.Equal(t, "G", cmd.Plan.Goal)
}

func TestEncodeOutboundControls(t *testing.T) {
	data, err := Encode(NewTextInput("hello"))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"text_input","text":"hello"}`, string(data))

	data, err = Encode(NewToggleTTS(false))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"toggle_tts","enabled":false}`, string(data))

	data, err = Encode(NewControl(TypeApprovePlan))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"approve_plan"}`, string(data))
}
