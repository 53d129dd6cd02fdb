package transport

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

// fakeDevice is an SSH server that emulates a small IOS-like CLI
type fakeDevice struct {
	listener net.Listener
	password string
	secret   string
	hostname string
}

func startFakeDevice(t *testing.T, password, secret string) *fakeDevice {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "admin" && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	d := &fakeDevice{
		listener: ln,
		password: password,
		secret:   secret,
		hostname: "R1",
	}
	go d.serve(config)
	return d
}

func (d *fakeDevice) params(password, secret string) Params {
	addr := d.listener.Addr().(*net.TCPAddr)
	return Params{
		Host:       "127.0.0.1",
		DeviceType: "cisco_ios",
		Username:   "admin",
		Password:   password,
		Secret:     secret,
		Port:       addr.Port,
		Timeout:    5 * time.Second,
	}
}

func (d *fakeDevice) serve(config *ssh.ServerConfig) {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		go d.handle(conn, config)
	}
}

func (d *fakeDevice) handle(conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			return
		}
		go func() {
			for req := range requests {
				if req.WantReply {
					req.Reply(req.Type == "pty-req" || req.Type == "shell", nil)
				}
			}
		}()
		go d.cli(ch)
	}
}

func (d *fakeDevice) cli(ch ssh.Channel) {
	defer ch.Close()

	hostname := d.hostname
	privileged, configMode := false, false
	prompt := func() string {
		switch {
		case configMode:
			return hostname + "(config)#"
		case privileged:
			return hostname + "#"
		default:
			return hostname + ">"
		}
	}

	io.WriteString(ch, "User Access Verification\r\n\r\n"+prompt())
	reader := bufio.NewReader(ch)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		io.WriteString(ch, line+"\r\n")

		if name, ok := strings.CutPrefix(line, "hostname "); ok && configMode {
			hostname = name
			io.WriteString(ch, prompt())
			continue
		}

		switch line {
		case "enable":
			io.WriteString(ch, "Password: ")
			secret, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.TrimRight(secret, "\r\n") == d.secret {
				privileged = true
			} else {
				io.WriteString(ch, "% Access denied\r\n")
			}
		case "configure terminal":
			configMode = true
			io.WriteString(ch, "Enter configuration commands, one per line.\r\n")
		case "end":
			configMode = false
		case "show version":
			io.WriteString(ch, "Cisco IOS Software, Version 15.2\r\nR1 uptime is 1 week\r\n")
		case "hang":
			continue
		case "exit":
			return
		}
		io.WriteString(ch, prompt())
	}
}

func openFake(t *testing.T, d *fakeDevice, params Params, config *SSHConfig) Session {
	t.Helper()
	tr := NewSSHTransport(config, zap.NewNop())
	s, err := tr.Open(context.Background(), params)
	require.NoError(t, err)
	t.Cleanup(func() { s.Disconnect() })
	return s
}

func TestSSHTransport_OpenAndFindPrompt(t *testing.T) {
	d := startFakeDevice(t, "pw", "en")
	s := openFake(t, d, d.params("pw", ""), nil)

	prompt, err := s.FindPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R1>", prompt)
}

func TestSSHTransport_EnableWithSecret(t *testing.T) {
	d := startFakeDevice(t, "pw", "en")
	s := openFake(t, d, d.params("pw", "en"), nil)

	prompt, err := s.FindPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R1#", prompt)
}

func TestSSHTransport_EnableRejected(t *testing.T) {
	d := startFakeDevice(t, "pw", "en")
	tr := NewSSHTransport(nil, zap.NewNop())

	_, err := tr.Open(context.Background(), d.params("pw", "wrong"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
}

func TestSSHTransport_AuthenticationFailure(t *testing.T) {
	d := startFakeDevice(t, "pw", "")
	tr := NewSSHTransport(nil, zap.NewNop())

	_, err := tr.Open(context.Background(), d.params("nope", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
	assert.Equal(t, models.FailureAuthentication, models.KindOf(err))
}

func TestSSHTransport_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	tr := NewSSHTransport(nil, zap.NewNop())
	_, err = tr.Open(context.Background(), Params{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "admin",
		Password: "pw",
		Timeout:  2 * time.Second,
	})
	require.Error(t, err)
	assert.Equal(t, models.FailureTransport, models.KindOf(err))
}

func TestSSHTransport_SendCommand(t *testing.T) {
	d := startFakeDevice(t, "pw", "en")
	s := openFake(t, d, d.params("pw", "en"), nil)

	out, err := s.SendCommand(context.Background(), "show version", DefaultCommandOptions())
	require.NoError(t, err)
	assert.False(t, out.Structured())
	assert.Equal(t, "Cisco IOS Software, Version 15.2\nR1 uptime is 1 week", out.Text)

	raw, err := s.SendCommand(context.Background(), "show version", CommandOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw.Text, "show version"))
	assert.True(t, strings.HasSuffix(raw.Text, "R1#"))
}

func TestSSHTransport_SendCommandStructured(t *testing.T) {
	d := startFakeDevice(t, "pw", "")
	config := DefaultSSHConfig()
	config.Parser = ParserFunc(func(deviceType, command, output string) ([]map[string]interface{}, bool) {
		if command != "show version" {
			return nil, false
		}
		return []map[string]interface{}{{"version": "15.2", "device_type": deviceType}}, true
	})
	s := openFake(t, d, d.params("pw", ""), config)

	opts := DefaultCommandOptions()
	opts.UseStructured = true
	out, err := s.SendCommand(context.Background(), "show version", opts)
	require.NoError(t, err)
	require.True(t, out.Structured())
	assert.Equal(t, "15.2", out.Records[0]["version"])
	assert.Equal(t, "cisco_ios", out.Records[0]["device_type"])
}

func TestSSHTransport_SendConfigSetPreservesOrder(t *testing.T) {
	d := startFakeDevice(t, "pw", "en")
	s := openFake(t, d, d.params("pw", "en"), nil)

	commands := []string{"interface Gi0/1", "description uplink", "no shutdown"}
	out, err := s.SendConfigSet(context.Background(), commands, true)
	require.NoError(t, err)

	last := -1
	for _, cmd := range append([]string{"configure terminal"}, append(commands, "end")...) {
		idx := strings.Index(out, cmd)
		require.GreaterOrEqual(t, idx, 0, "missing %q", cmd)
		assert.Greater(t, idx, last, "%q out of order", cmd)
		last = idx
	}

	prompt, err := s.FindPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R1#", prompt)
}

func TestSSHTransport_SendConfigSetStaysInConfigMode(t *testing.T) {
	d := startFakeDevice(t, "pw", "en")
	s := openFake(t, d, d.params("pw", "en"), nil)

	_, err := s.SendConfigSet(context.Background(), []string{"hostname R1"}, false)
	require.NoError(t, err)

	prompt, err := s.FindPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R1(config)#", prompt)
}

func TestSSHTransport_PromptChangeFollowsNewHostname(t *testing.T) {
	d := startFakeDevice(t, "pw", "en")
	s := openFake(t, d, d.params("pw", "en"), nil)
	ctx := context.Background()

	start := time.Now()
	out, err := s.SendConfigSet(ctx, []string{"hostname R2", "interface Gi0/1"}, true)
	require.NoError(t, err)
	assert.Contains(t, out, "R2(config)#")
	assert.True(t, strings.HasSuffix(out, "R2#"), out)

	prompt, err := s.FindPrompt(ctx)
	require.NoError(t, err)
	assert.Equal(t, "R2#", prompt)

	cmd, err := s.SendCommand(ctx, "show version", DefaultCommandOptions())
	require.NoError(t, err)
	assert.Contains(t, cmd.Text, "Cisco IOS Software")

	// each renamed prompt costs one settle period, never the device timeout
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestShellSession_ReadPromptRebases(t *testing.T) {
	s := &shellSession{
		notify:  make(chan struct{}, 1),
		settle:  20 * time.Millisecond,
		timeout: 2 * time.Second,
		base:    basePrompt("user@host:~$"),
		logger:  zap.NewNop(),
	}
	s.buf.WriteString("cd /tmp\r\nuser@host:/tmp$ ")

	out, err := s.readPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user@host:/tmp$", lastLine(normalize(out)))
	assert.Equal(t, "user@host:/tmp", s.base)

	s.buf.WriteString("ls\r\nnotes.txt\r\nuser@host:/tmp$ ")
	out, err = s.readUntil(context.Background(), s.atPrompt, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")
}

func TestShellSession_NonPromptOutputStillTimesOut(t *testing.T) {
	s := &shellSession{
		notify:  make(chan struct{}, 1),
		settle:  10 * time.Millisecond,
		timeout: 100 * time.Millisecond,
		base:    "R1",
		logger:  zap.NewNop(),
	}
	s.buf.WriteString("copying flash:image.bin ...")

	_, err := s.readPrompt(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.FailureTimeout, models.KindOf(err))
}

func TestSSHTransport_CommandTimeout(t *testing.T) {
	d := startFakeDevice(t, "pw", "")
	s := openFake(t, d, d.params("pw", ""), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := s.SendCommand(ctx, "hang", DefaultCommandOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTimeout)
}

func TestSSHTransport_DisconnectIsIdempotent(t *testing.T) {
	d := startFakeDevice(t, "pw", "")
	tr := NewSSHTransport(nil, zap.NewNop())
	s, err := tr.Open(context.Background(), d.params("pw", ""))
	require.NoError(t, err)

	assert.NoError(t, s.Disconnect())
	assert.NoError(t, s.Disconnect())

	_, err = s.SendCommand(context.Background(), "show version", DefaultCommandOptions())
	assert.ErrorIs(t, err, models.ErrSessionClosed)
}
