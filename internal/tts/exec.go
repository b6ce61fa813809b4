package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

const (
	maxLineBytes     = 64 << 20
	closeGracePeriod = 3 * time.Second
)

var errProcessExited = errors.New("model process exited")

// ExecBackend runs the model in a long-lived child process speaking JSON lines
// over stdin/stdout.
type ExecBackend struct {
	cmd []string
	log *slog.Logger
}

type execCommand struct {
	Op    string  `json:"op"`
	Text  string  `json:"text,omitempty"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

type execMessage struct {
	Type      string   `json:"type"`
	Voices    []string `json:"voices,omitempty"`
	Graphemes string   `json:"graphemes,omitempty"`
	Phonemes  string   `json:"phonemes,omitempty"`
	PCMBase64 string   `json:"pcm_base64,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type execLine struct {
	msg execMessage
	err error
}

func NewExecBackend(command string, log *slog.Logger) (*ExecBackend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse model command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("model command empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ExecBackend{cmd: args, log: log.With(slog.String("component", "tts-exec"))}, nil
}

// Build starts the model process and waits for its ready handshake. A quiet
// build discards the child's stderr.
func (b *ExecBackend) Build(ctx context.Context, opts BuildOptions) (Model, error) {
	device := ResolveDevice(opts.Device)
	args := append([]string{}, b.cmd[1:]...)
	args = append(args, "--model", opts.ModelPath, "--device", device)
	if opts.Language != "" {
		args = append(args, "--lang", opts.Language)
	}

	cmd := exec.Command(b.cmd[0], args...)
	if !opts.Quiet {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start model process: %w", err)
	}

	m := &execModel{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan execLine, 16),
		log:   b.log,
	}
	go m.readLoop(stdout)

	hello, err := m.next(ctx)
	if err == nil && hello.Type != "ready" {
		err = fmt.Errorf("unexpected handshake %q", hello.Type)
		if hello.Error != "" {
			err = errors.New(hello.Error)
		}
	}
	if err != nil {
		m.kill()
		return nil, err
	}
	m.voices = hello.Voices
	b.log.Info("model process started",
		slog.String("command", b.cmd[0]),
		slog.String("device", device),
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("voices", len(hello.Voices)),
	)
	return m, nil
}

type execModel struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan execLine
	voices []string
	closed bool
	log    *slog.Logger
}

func (m *execModel) readLoop(r io.Reader) {
	defer close(m.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg execMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			m.lines <- execLine{err: fmt.Errorf("decode model output: %w", err)}
			continue
		}
		m.lines <- execLine{msg: msg}
	}
	if err := scanner.Err(); err != nil {
		m.lines <- execLine{err: err}
	}
}

func (m *execModel) next(ctx context.Context) (execMessage, error) {
	select {
	case line, ok := <-m.lines:
		if !ok {
			return execMessage{}, errProcessExited
		}
		return line.msg, line.err
	case <-ctx.Done():
		return execMessage{}, ctx.Err()
	}
}

func (m *execModel) send(cmd execCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	_, err = m.stdin.Write(append(data, '\n'))
	return err
}

func (m *execModel) Voices(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrModelClosed
	}
	if err := m.send(execCommand{Op: "voices"}); err != nil {
		return nil, err
	}
	msg, err := m.next(ctx)
	if err != nil {
		return nil, err
	}
	switch msg.Type {
	case "voices":
		m.voices = msg.Voices
		return append([]string(nil), msg.Voices...), nil
	case "error":
		return nil, errors.New(msg.Error)
	default:
		return nil, fmt.Errorf("unexpected reply %q", msg.Type)
	}
}

func (m *execModel) Synthesize(ctx context.Context, req Request) ([]Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrModelClosed
	}
	if err := m.send(execCommand{Op: "synthesize", Text: req.Text, Voice: req.Voice, Speed: req.Speed}); err != nil {
		return nil, err
	}

	var segments []Segment
	for {
		msg, err := m.next(ctx)
		if err != nil {
			return nil, m.discardReply(ctx, err)
		}
		switch msg.Type {
		case "segment":
			samples, err := decodeSegmentAudio(msg.PCMBase64)
			if err != nil {
				return nil, m.discardReply(ctx, err)
			}
			segments = append(segments, Segment{Graphemes: msg.Graphemes, Phonemes: msg.Phonemes, Samples: samples})
		case "done":
			return segments, nil
		case "error":
			return nil, errors.New(msg.Error)
		default:
			return nil, m.discardReply(ctx, fmt.Errorf("unexpected reply %q", msg.Type))
		}
	}
}

// discardReply consumes the rest of a failed synthesis reply so the next
// request starts on its own lines. If the reply cannot be read to its end the
// process is killed, since the stream is out of step with requests.
func (m *execModel) discardReply(ctx context.Context, cause error) error {
	for {
		if ctx.Err() != nil || errors.Is(cause, errProcessExited) {
			m.killLocked()
			return cause
		}
		msg, err := m.next(ctx)
		switch {
		case errors.Is(err, errProcessExited):
			m.killLocked()
			return cause
		case err != nil:
			continue
		case msg.Type == "done" || msg.Type == "error":
			return cause
		}
	}
}

func decodeSegmentAudio(encoded string) ([]float32, error) {
	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode segment audio: %w", err)
	}
	return decodePCM(pcm)
}

func (m *execModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	_ = m.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- m.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(closeGracePeriod):
		m.log.Warn("model process did not exit, killing", slog.Int("pid", m.cmd.Process.Pid))
		_ = m.cmd.Process.Kill()
		<-done
		return nil
	}
}

func (m *execModel) kill() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killLocked()
}

func (m *execModel) killLocked() {
	if m.closed {
		return
	}
	m.closed = true
	_ = m.stdin.Close()
	_ = m.cmd.Process.Kill()
	_ = m.cmd.Wait()
}
