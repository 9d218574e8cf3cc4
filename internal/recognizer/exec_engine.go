package recognizer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	shellwords "github.com/mattn/go-shellwords"
)

// ExecEngine adapts an external recognizer process into the Engine
// contract. The process is expected to write one JSON object per line to
// stdout: {"text": "...", "confidence": 0.92, "final": true}. Lines that
// are not valid JSON are treated as final plain-text results.
type ExecEngine struct {
	args []string

	mu  sync.Mutex
	cfg Config
	cb  EngineCallbacks
	cmd *exec.Cmd
}

type execLine struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Final      bool    `json:"final"`
	Error      string  `json:"error,omitempty"`
}

func NewExecEngine(command string) (*ExecEngine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognizer command is empty")
	}
	return &ExecEngine{args: args}, nil
}

func (e *ExecEngine) Configure(cfg Config, cb EngineCallbacks) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.cb = cb
	return nil
}

func (e *ExecEngine) Start() error {
	e.mu.Lock()
	if e.cmd != nil {
		e.mu.Unlock()
		return fmt.Errorf("recognizer process already running")
	}

	args := append([]string{}, e.args...)
	if e.cfg.Language != "" {
		args = append(args, "--language", e.cfg.Language)
	}
	if e.cfg.InterimResults {
		args = append(args, "--interim")
	}

	cmd := exec.Command(args[0], args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("recognizer stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("start recognizer process: %w", err)
	}
	e.cmd = cmd
	cb := e.cb
	e.mu.Unlock()

	if cb.OnStart != nil {
		cb.OnStart()
	}
	go e.readLoop(cmd, stdout, cb)
	return nil
}

func (e *ExecEngine) readLoop(cmd *exec.Cmd, stdout io.Reader, cb EngineCallbacks) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var parsed execLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			parsed = execLine{Text: line, Final: true}
		}
		if parsed.Error != "" {
			if cb.OnError != nil {
				cb.OnError(parsed.Error)
			}
			continue
		}
		if cb.OnResult != nil {
			cb.OnResult([]EngineResult{{
				Text:       parsed.Text,
				Confidence: parsed.Confidence,
				IsFinal:    parsed.Final,
			}})
		}
	}
	if err := scanner.Err(); err != nil && cb.OnError != nil {
		cb.OnError(codeNetwork)
	}
	_ = cmd.Wait()

	e.mu.Lock()
	if e.cmd == cmd {
		e.cmd = nil
	}
	e.mu.Unlock()

	if cb.OnEnd != nil {
		cb.OnEnd()
	}
}

func (e *ExecEngine) Stop() error {
	return e.terminate()
}

func (e *ExecEngine) Abort() error {
	e.mu.Lock()
	cb := e.cb
	e.mu.Unlock()
	if cb.OnError != nil {
		cb.OnError(codeAborted)
	}
	return e.terminate()
}

func (e *ExecEngine) terminate() error {
	e.mu.Lock()
	cmd := e.cmd
	e.cmd = nil
	e.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	// The read loop observes EOF and emits OnEnd.
	return cmd.Process.Kill()
}
