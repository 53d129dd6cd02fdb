package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// SSHConfig contains SSH transport configuration
type SSHConfig struct {
	ConnectTimeout time.Duration
	MaxOutputSize  int
	KnownHostsFile string
	TermWidth      int
	TermHeight     int
	KexAlgorithms  []string
	Ciphers        []string
	MACs           []string
	Parser         Parser
}

// DefaultSSHConfig returns default SSH configuration. Legacy algorithms are
// included at the end of each list because older network gear offers nothing else.
func DefaultSSHConfig() *SSHConfig {
	return &SSHConfig{
		ConnectTimeout: 30 * time.Second,
		MaxOutputSize:  10 * 1024 * 1024, // 10MB
		TermWidth:      511,
		TermHeight:     24,
		KexAlgorithms: []string{
			"curve25519-sha256",
			"curve25519-sha256@libssh.org",
			"ecdh-sha2-nistp256",
			"ecdh-sha2-nistp384",
			"ecdh-sha2-nistp521",
			"diffie-hellman-group14-sha256",
			"diffie-hellman-group14-sha1",
			"diffie-hellman-group1-sha1",
		},
		Ciphers: []string{
			"chacha20-poly1305@openssh.com",
			"aes256-gcm@openssh.com",
			"aes128-gcm@openssh.com",
			"aes256-ctr",
			"aes192-ctr",
			"aes128-ctr",
			"aes128-cbc",
			"3des-cbc",
		},
		MACs: []string{
			"hmac-sha2-256-etm@openssh.com",
			"hmac-sha2-512-etm@openssh.com",
			"hmac-sha2-256",
			"hmac-sha2-512",
			"hmac-sha1",
		},
	}
}

// SSHTransport opens interactive shell sessions over SSH
type SSHTransport struct {
	config *SSHConfig
	logger *zap.Logger
}

// NewSSHTransport creates a new SSH transport
func NewSSHTransport(config *SSHConfig, logger *zap.Logger) *SSHTransport {
	if config == nil {
		config = DefaultSSHConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSHTransport{
		config: config,
		logger: logger.Named("ssh"),
	}
}

// Open dials the device, authenticates and prepares an interactive shell
func (t *SSHTransport) Open(ctx context.Context, params Params) (Session, error) {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = t.config.ConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hostKeyCallback, err := t.hostKeyCallback()
	if err != nil {
		return nil, models.NewTransportError("load known hosts", err)
	}

	password := params.Password
	clientConfig := &ssh.ClientConfig{
		User:            params.Username,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
		Config: ssh.Config{
			KeyExchanges: t.config.KexAlgorithms,
			Ciphers:      t.config.Ciphers,
			MACs:         t.config.MACs,
		},
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		},
	}

	port := params.Port
	if port <= 0 {
		port = models.DefaultPort
	}
	address := net.JoinHostPort(params.Host, fmt.Sprintf("%d", port))

	t.logger.Debug("Opening SSH session",
		zap.String("host", params.Host),
		zap.Int("port", port),
		zap.String("device_type", params.DeviceType),
	)

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, classify("dial "+address, err)
	}

	deadline, _ := ctx.Deadline()
	conn.SetDeadline(deadline)
	c, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		conn.Close()
		return nil, classify("ssh handshake", err)
	}
	conn.SetDeadline(time.Time{})

	client := ssh.NewClient(c, chans, reqs)
	s, err := t.startShell(ctx, client, params)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (t *SSHTransport) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if t.config.KnownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(t.config.KnownHostsFile)
}

func (t *SSHTransport) startShell(ctx context.Context, client *ssh.Client, params Params) (*shellSession, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, classify("open channel", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", t.config.TermHeight, t.config.TermWidth, modes); err != nil {
		session.Close()
		return nil, classify("request pty", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, classify("stdin", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, classify("stdout", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, classify("start shell", err)
	}

	s := &shellSession{
		client:     client,
		session:    session,
		stdin:      stdin,
		profile:    ProfileFor(params.DeviceType),
		deviceType: params.DeviceType,
		secret:     params.Secret,
		timeout:    params.Timeout,
		maxOutput:  t.config.MaxOutputSize,
		settle:     promptSettle,
		parser:     t.config.Parser,
		notify:     make(chan struct{}, 1),
		logger:     t.logger.With(zap.String("host", params.Host)),
	}
	go s.pump(stdout)

	if err := s.prepare(ctx); err != nil {
		s.Disconnect()
		return nil, err
	}
	return s, nil
}

// promptSettle is how long output must stay quiet before a prompt that no
// longer starts with the known base is accepted as the new prompt
const promptSettle = 300 * time.Millisecond

// shellSession drives one interactive shell. Output is pumped into a buffer
// by a reader goroutine and consumed by readUntil.
type shellSession struct {
	client     *ssh.Client
	session    *ssh.Session
	stdin      io.WriteCloser
	profile    Profile
	deviceType string
	secret     string
	timeout    time.Duration
	maxOutput  int
	settle     time.Duration
	parser     Parser
	logger     *zap.Logger

	mu      sync.Mutex
	buf     bytes.Buffer
	readErr error
	notify  chan struct{}
	base    string
	closed  bool
}

func (s *shellSession) pump(r io.Reader) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		s.mu.Lock()
		if n > 0 {
			s.buf.Write(chunk[:n])
		}
		if err != nil {
			s.readErr = err
		}
		s.mu.Unlock()

		select {
		case s.notify <- struct{}{}:
		default:
		}
		if err != nil {
			return
		}
	}
}

// prepare waits for the login prompt, elevates with the secret and disables paging
func (s *shellSession) prepare(ctx context.Context) error {
	out, err := s.readUntil(ctx, s.atAnyPrompt, nil)
	if err != nil {
		return err
	}
	prompt := lastLine(normalize(out))

	if s.secret != "" && s.profile.EnableCommand != "" && strings.HasSuffix(prompt, s.profile.UnprivilegedSuffix) {
		if prompt, err = s.enable(ctx); err != nil {
			return err
		}
	}
	s.base = basePrompt(prompt)

	for _, cmd := range s.profile.DisablePaging {
		if err := s.write(cmd); err != nil {
			return err
		}
		if _, err := s.readPrompt(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *shellSession) enable(ctx context.Context) (string, error) {
	if err := s.write(s.profile.EnableCommand); err != nil {
		return "", err
	}
	out, err := s.readUntil(ctx, func(text string) bool {
		return passwordPattern.MatchString(text) || s.atAnyPrompt(text)
	}, nil)
	if err != nil {
		return "", err
	}
	if passwordPattern.MatchString(normalize(out)) {
		if err := s.write(s.secret); err != nil {
			return "", err
		}
		if out, err = s.readUntil(ctx, s.atAnyPrompt, nil); err != nil {
			return "", err
		}
	}
	prompt := lastLine(normalize(out))
	if strings.HasSuffix(prompt, s.profile.UnprivilegedSuffix) {
		return "", models.NewAuthError("enable", errors.New("privileged mode rejected the enable secret"))
	}
	return prompt, nil
}

func (s *shellSession) atAnyPrompt(text string) bool {
	return isPrompt(lastLine(normalize(text)), "")
}

func (s *shellSession) atPrompt(text string) bool {
	return isPrompt(lastLine(normalize(text)), s.base)
}

// readPrompt waits for the device prompt. Commands such as hostname or cd
// change the prompt, so any prompt-shaped last line is accepted once output
// has been quiet for the settle period. The base is re-derived from the
// prompt that came back.
func (s *shellSession) readPrompt(ctx context.Context) (string, error) {
	out, err := s.readUntil(ctx, s.atPrompt, s.atAnyPrompt)
	if err != nil {
		return out, err
	}
	if prompt := lastLine(normalize(out)); prompt != "" {
		if base := basePrompt(prompt); base != s.base {
			s.logger.Debug("Device prompt changed", zap.String("prompt", prompt))
			s.base = base
		}
	}
	return out, nil
}

// readUntil collects output until match accepts the accumulated text, the
// channel fails, or ctx expires. When settled is set, text it accepts is
// also returned once no further output arrives within the settle period.
func (s *shellSession) readUntil(ctx context.Context, match, settled func(string) bool) (string, error) {
	if _, ok := ctx.Deadline(); !ok && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var collected strings.Builder
	for {
		s.mu.Lock()
		if s.buf.Len() > 0 {
			collected.Write(s.buf.Bytes())
			s.buf.Reset()
		}
		readErr := s.readErr
		s.mu.Unlock()

		text := collected.String()
		if match(text) {
			return text, nil
		}
		if s.maxOutput > 0 && collected.Len() > s.maxOutput {
			return text, models.NewTransportError("read", fmt.Errorf("output exceeded %d bytes", s.maxOutput))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return text, models.NewTransportError("read", models.ErrSessionClosed)
			}
			return text, classify("read", readErr)
		}

		var quiet <-chan time.Time
		var timer *time.Timer
		if settled != nil && s.settle > 0 && settled(text) {
			timer = time.NewTimer(s.settle)
			quiet = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return text, models.NewTimeoutError("read", fmt.Errorf("no prompt received: %w", ctx.Err()))
		case <-quiet:
			s.mu.Lock()
			pending := s.buf.Len()
			s.mu.Unlock()
			if pending == 0 {
				return text, nil
			}
		case <-s.notify:
			stopTimer(timer)
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (s *shellSession) drain() {
	s.mu.Lock()
	s.buf.Reset()
	s.mu.Unlock()
}

func (s *shellSession) write(line string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return models.NewTransportError("write", models.ErrSessionClosed)
	}
	if _, err := fmt.Fprintf(s.stdin, "%s\n", line); err != nil {
		return classify("write", err)
	}
	return nil
}

// FindPrompt sends an empty line and returns the prompt the device answers with
func (s *shellSession) FindPrompt(ctx context.Context) (string, error) {
	s.drain()
	if err := s.write(""); err != nil {
		return "", err
	}
	out, err := s.readPrompt(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(lastLine(normalize(out))), nil
}

// SendCommand runs one command and waits for the prompt to return
func (s *shellSession) SendCommand(ctx context.Context, command string, opts CommandOptions) (Output, error) {
	s.drain()
	if err := s.write(command); err != nil {
		return Output{}, err
	}
	out, err := s.readPrompt(ctx)
	if err != nil {
		return Output{}, err
	}

	text := cleanOutput(out, command, opts)
	result := Output{Text: text}
	if opts.UseStructured && s.parser != nil {
		if records, ok := s.parser.Parse(s.deviceType, command, text); ok {
			result.Records = records
		}
	}
	return result, nil
}

// SendConfigSet enters configuration mode and applies commands in order
func (s *shellSession) SendConfigSet(ctx context.Context, commands []string, exitConfigMode bool) (string, error) {
	s.drain()

	var output strings.Builder
	for _, cmd := range BuildConfigSequence(s.profile, commands, exitConfigMode) {
		if err := s.write(cmd); err != nil {
			return output.String(), err
		}
		out, err := s.readPrompt(ctx)
		output.WriteString(normalize(out))
		if err != nil {
			return output.String(), fmt.Errorf("config command %q: %w", cmd, err)
		}
	}
	return strings.Trim(output.String(), "\n"), nil
}

// Disconnect closes the shell and the SSH connection
func (s *shellSession) Disconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Debug("Closing SSH session")
	s.session.Close()
	if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return classify("close", err)
	}
	return nil
}

// classify maps low-level SSH and network errors onto failure kinds
func classify(op string, err error) error {
	var te *models.TransportError
	if errors.As(err, &te) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return models.NewTimeoutError(op, err)
	}

	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain") {
		return models.NewAuthError(op, err)
	}
	return models.NewTransportError(op, err)
}
