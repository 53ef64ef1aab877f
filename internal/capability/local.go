// Package capability implements the named operations that travel through the
// call bridge. Local executes requests against this machine's workspace;
// Remote is the typed facade for asking the peer to run them instead.
package capability

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"voco/internal/logging"
)

// Capability names understood by Local.Execute.
const (
	ReadFile           = "read_file"
	WriteFile          = "write_file"
	ListDir            = "list_dir"
	Exists             = "exists"
	SearchInFiles      = "search_in_files"
	RunTerminalCommand = "run_terminal_command"
)

const maxSearchResults = 100

// Local executes capabilities against a workspace directory. Paths in
// requests are resolved relative to the workspace root and may not escape it.
type Local struct {
	root       string
	cmdTimeout time.Duration
	log        *logging.Logger
}

// NewLocal creates an executor rooted at dir.
func NewLocal(dir string, cmdTimeout time.Duration) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	if cmdTimeout <= 0 {
		cmdTimeout = 60 * time.Second
	}
	return &Local{
		root:       abs,
		cmdTimeout: cmdTimeout,
		log:        logging.ForComponent("capability"),
	}, nil
}

// Root returns the workspace root directory.
func (l *Local) Root() string { return l.root }

// Execute runs the named capability. Unknown names are an error; the bridge
// reports it back to the requester.
func (l *Local) Execute(ctx context.Context, name string, input map[string]interface{}) (interface{}, error) {
	l.log.Debug("executing %s", name)
	switch name {
	case ReadFile:
		return l.readFile(input)
	case WriteFile:
		return l.writeFile(input)
	case ListDir:
		return l.listDir(input)
	case Exists:
		return l.exists(input)
	case SearchInFiles:
		return l.search(input)
	case RunTerminalCommand:
		return l.runCommand(ctx, input)
	default:
		return nil, fmt.Errorf("unknown capability %q", name)
	}
}

// resolve maps a request path into the workspace and rejects escapes.
func (l *Local) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(l.root, abs)
	}
	abs = filepath.Clean(abs)
	rel, err := filepath.Rel(l.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", path)
	}
	return abs, nil
}

func stringArg(input map[string]interface{}, key string) (string, error) {
	v, ok := input[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func (l *Local) readFile(input map[string]interface{}) (interface{}, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return nil, err
	}
	abs, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *Local) writeFile(input map[string]interface{}) (interface{}, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(input, "content")
	if err != nil {
		return nil, err
	}
	abs, err := l.resolve(path)
	if err != nil {
		return nil, err
	}

	var before string
	if old, err := os.ReadFile(abs); err == nil {
		before = string(old)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, content, false)
	return map[string]interface{}{
		"status": "written",
		"path":   path,
		"diff":   dmp.DiffPrettyText(diffs),
	}, nil
}

func (l *Local) listDir(input map[string]interface{}) (interface{}, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return nil, err
	}
	abs, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (l *Local) exists(input map[string]interface{}) (interface{}, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return nil, err
	}
	abs, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	_, err = os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return nil, err
	}
	return true, nil
}

// search walks the workspace and collects matching lines, one
// "path:line: text" entry per hit, capped at maxSearchResults. The query is
// a case-insensitive substring unless the request sets "regex": true.
func (l *Local) search(input map[string]interface{}) (interface{}, error) {
	query, err := stringArg(input, "query")
	if err != nil {
		return nil, err
	}
	matches := func(line string) bool {
		return strings.Contains(strings.ToLower(line), strings.ToLower(query))
	}
	if useRegex, _ := input["regex"].(bool); useRegex {
		re, err := regexp.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		matches = re.MatchString
	}

	var hits []string
	err = filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "node_modules" || name == "__pycache__" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(hits) >= maxSearchResults {
			return filepath.SkipAll
		}
		data, err := os.ReadFile(path)
		if err != nil || !isText(data) {
			return nil
		}
		rel, _ := filepath.Rel(l.root, path)
		for i, line := range strings.Split(string(data), "\n") {
			if matches(line) {
				hits = append(hits, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(hits) >= maxSearchResults {
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// isText rejects files with NUL bytes in the first block.
func isText(data []byte) bool {
	block := data
	if len(block) > 8000 {
		block = block[:8000]
	}
	for _, b := range block {
		if b == 0 {
			return false
		}
	}
	return true
}

func (l *Local) runCommand(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	command, err := stringArg(input, "command")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.cmdTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = l.root
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("command timed out after %s", l.cmdTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("%s (output: %s)", err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
