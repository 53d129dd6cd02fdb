// Package transporttest provides a scripted in-memory transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ravipendurty/netmiko-mcp-server/internal/transport"
	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// Call records one transport invocation
type Call struct {
	Op       string
	Host     string
	Command  string
	Commands []string
	Exit     bool
	Options  transport.CommandOptions
}

// Transport is a scripted fake. Every call on the same host is checked for
// overlap with any other in-flight call on that host.
type Transport struct {
	// Delay is slept inside every call to widen race windows
	Delay time.Duration

	mu            sync.Mutex
	prompts       map[string]string
	openErrs      map[string]error
	promptErrs    map[string]error
	closeErrs     map[string]error
	commandErrs   map[string]error
	outputs       map[string]transport.Output
	sessions      []*Session
	calls         []Call
	inFlight      map[string]int
	overlaps      int
	useAfterClose int
}

// New creates an empty fake transport
func New() *Transport {
	return &Transport{
		prompts:     make(map[string]string),
		openErrs:    make(map[string]error),
		promptErrs:  make(map[string]error),
		closeErrs:   make(map[string]error),
		commandErrs: make(map[string]error),
		outputs:     make(map[string]transport.Output),
		inFlight:    make(map[string]int),
	}
}

// SetPrompt sets the prompt reported by sessions to host
func (t *Transport) SetPrompt(host, prompt string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prompts[host] = prompt
}

// FailOpen makes Open to host fail with err
func (t *Transport) FailOpen(host string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openErrs[host] = err
}

// FailPrompt makes FindPrompt on host fail with err. A nil err clears it.
func (t *Transport) FailPrompt(host string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.promptErrs, host)
		return
	}
	t.promptErrs[host] = err
}

// FailDisconnect makes Disconnect on host report err
func (t *Transport) FailDisconnect(host string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeErrs[host] = err
}

// FailCommand makes SendCommand and SendConfigSet fail for command
func (t *Transport) FailCommand(command string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commandErrs[command] = err
}

// SetOutput scripts the output of command
func (t *Transport) SetOutput(command string, out transport.Output) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outputs[command] = out
}

// Open implements transport.Transport
func (t *Transport) Open(ctx context.Context, params transport.Params) (transport.Session, error) {
	done := t.enter(Call{Op: "open", Host: params.Host})
	defer done()

	if err := t.sleep(ctx); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.openErrs[params.Host]; err != nil {
		return nil, err
	}
	s := &Session{t: t, params: params}
	t.sessions = append(t.sessions, s)
	return s, nil
}

// Sessions returns every session opened so far
func (t *Transport) Sessions() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Session(nil), t.sessions...)
}

// OpenSessions counts sessions to host that have not been disconnected
func (t *Transport) OpenSessions(host string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.sessions {
		if s.params.Host == host && !s.closed {
			n++
		}
	}
	return n
}

// Calls returns every recorded call in invocation order
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallsFor returns the recorded calls for one operation name
func (t *Transport) CallsFor(op string) []Call {
	var out []Call
	for _, c := range t.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Overlaps counts calls that started while another call on the same host was in flight
func (t *Transport) Overlaps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overlaps
}

// UseAfterClose counts calls made on an already disconnected session
func (t *Transport) UseAfterClose() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.useAfterClose
}

func (t *Transport) enter(call Call) func() {
	t.mu.Lock()
	t.calls = append(t.calls, call)
	t.inFlight[call.Host]++
	if t.inFlight[call.Host] > 1 {
		t.overlaps++
	}
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		t.inFlight[call.Host]--
		t.mu.Unlock()
	}
}

func (t *Transport) sleep(ctx context.Context) error {
	if t.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(t.Delay):
		return nil
	case <-ctx.Done():
		return models.NewTimeoutError("fake", ctx.Err())
	}
}

// Session is a fake live channel
type Session struct {
	t      *Transport
	params transport.Params
	closed bool
}

// Params returns the parameters the session was opened with
func (s *Session) Params() transport.Params {
	return s.params
}

// Closed reports whether Disconnect was called
func (s *Session) Closed() bool {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	return s.closed
}

func (s *Session) check() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.closed {
		s.t.useAfterClose++
		return models.NewTransportError("fake", models.ErrSessionClosed)
	}
	return nil
}

// FindPrompt implements transport.Session
func (s *Session) FindPrompt(ctx context.Context) (string, error) {
	done := s.t.enter(Call{Op: "find_prompt", Host: s.params.Host})
	defer done()

	if err := s.check(); err != nil {
		return "", err
	}
	if err := s.t.sleep(ctx); err != nil {
		return "", err
	}

	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if err := s.t.promptErrs[s.params.Host]; err != nil {
		return "", err
	}
	if p, ok := s.t.prompts[s.params.Host]; ok {
		return p, nil
	}
	return "router#", nil
}

// SendCommand implements transport.Session
func (s *Session) SendCommand(ctx context.Context, command string, opts transport.CommandOptions) (transport.Output, error) {
	done := s.t.enter(Call{Op: "send_command", Host: s.params.Host, Command: command, Options: opts})
	defer done()

	if err := s.check(); err != nil {
		return transport.Output{}, err
	}
	if err := s.t.sleep(ctx); err != nil {
		return transport.Output{}, err
	}

	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if err := s.t.commandErrs[command]; err != nil {
		return transport.Output{}, err
	}
	out, ok := s.t.outputs[command]
	if !ok {
		return transport.Output{Text: fmt.Sprintf("output of %s", command)}, nil
	}
	if !opts.UseStructured {
		out.Records = nil
	}
	return out, nil
}

// SendConfigSet implements transport.Session
func (s *Session) SendConfigSet(ctx context.Context, commands []string, exitConfigMode bool) (string, error) {
	done := s.t.enter(Call{
		Op:       "send_config_set",
		Host:     s.params.Host,
		Commands: append([]string(nil), commands...),
		Exit:     exitConfigMode,
	})
	defer done()

	if err := s.check(); err != nil {
		return "", err
	}
	if err := s.t.sleep(ctx); err != nil {
		return "", err
	}

	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	lines := make([]string, 0, len(commands)+2)
	lines = append(lines, "config term")
	for _, cmd := range commands {
		if err := s.t.commandErrs[cmd]; err != nil {
			return "", err
		}
		lines = append(lines, "router(config)# "+cmd)
	}
	if exitConfigMode {
		lines = append(lines, "end")
	}
	return strings.Join(lines, "\n"), nil
}

// Disconnect implements transport.Session
func (s *Session) Disconnect() error {
	done := s.t.enter(Call{Op: "disconnect", Host: s.params.Host})
	defer done()

	if err := s.t.sleep(context.Background()); err != nil {
		return err
	}

	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.closed = true
	return s.t.closeErrs[s.params.Host]
}
