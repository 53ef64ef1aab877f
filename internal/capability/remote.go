package capability

import (
	"context"
	"fmt"
)

// Caller dispatches a named capability and waits for its correlated result.
// *bridge.Bridge satisfies it.
type Caller interface {
	Call(ctx context.Context, capability string, input map[string]interface{}) (interface{}, error)
}

// Remote asks the connected peer to execute capabilities on its side of the
// channel.
type Remote struct {
	caller Caller
}

// NewRemote wraps a caller in the typed facade.
func NewRemote(caller Caller) *Remote {
	return &Remote{caller: caller}
}

func (r *Remote) callString(ctx context.Context, name string, input map[string]interface{}) (string, error) {
	out, err := r.caller.Call(ctx, name, input)
	if err != nil {
		return "", err
	}
	s, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("%s returned %T, want string", name, out)
	}
	return s, nil
}

// ReadFile returns the contents of a file in the peer's workspace.
func (r *Remote) ReadFile(ctx context.Context, path string) (string, error) {
	return r.callString(ctx, ReadFile, map[string]interface{}{"path": path})
}

// WriteFile replaces a file in the peer's workspace.
func (r *Remote) WriteFile(ctx context.Context, path, content string) error {
	_, err := r.caller.Call(ctx, WriteFile, map[string]interface{}{
		"path": path, "content": content,
	})
	return err
}

// ListDir lists a directory in the peer's workspace.
func (r *Remote) ListDir(ctx context.Context, path string) ([]string, error) {
	out, err := r.caller.Call(ctx, ListDir, map[string]interface{}{"path": path})
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case []string:
		return v, nil
	case []interface{}:
		names := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("list_dir entry %T, want string", e)
			}
			names = append(names, s)
		}
		return names, nil
	default:
		return nil, fmt.Errorf("list_dir returned %T, want list", out)
	}
}

// Exists reports whether a path exists in the peer's workspace.
func (r *Remote) Exists(ctx context.Context, path string) (bool, error) {
	out, err := r.caller.Call(ctx, Exists, map[string]interface{}{"path": path})
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("exists returned %T, want bool", out)
	}
	return b, nil
}

// Search runs a substring search over the peer's workspace.
func (r *Remote) Search(ctx context.Context, query string) ([]string, error) {
	out, err := r.caller.Call(ctx, SearchInFiles, map[string]interface{}{"query": query})
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case []string:
		return v, nil
	case []interface{}:
		hits := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				hits = append(hits, s)
			}
		}
		return hits, nil
	default:
		return nil, fmt.Errorf("search_in_files returned %T, want list", out)
	}
}

// RunCommand executes a shell command in the peer's workspace.
func (r *Remote) RunCommand(ctx context.Context, command string) (string, error) {
	return r.callString(ctx, RunTerminalCommand, map[string]interface{}{"command": command})
}

// CallTool dispatches a capability this facade has no typed wrapper for.
func (r *Remote) CallTool(ctx context.Context, name string, input map[string]interface{}) (interface{}, error) {
	return r.caller.Call(ctx, name, input)
}
