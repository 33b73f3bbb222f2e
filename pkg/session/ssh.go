package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Older IOS images only offer SHA1 key exchange and CBC ciphers.
var (
	sshKeyExchanges = []string{
		"curve25519-sha256", "curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256", "ecdh-sha2-nistp384", "ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256", "diffie-hellman-group14-sha1", "diffie-hellman-group1-sha1",
	}
	sshCiphers = []string{
		"aes128-gcm@openssh.com", "chacha20-poly1305@openssh.com",
		"aes128-ctr", "aes192-ctr", "aes256-ctr",
		"aes128-cbc", "3des-cbc",
	}
)

func (d *CLIDialer) dialSSH(ctx context.Context, t Target) (Session, error) {
	password := t.Password
	config := &ssh.ClientConfig{
		User: t.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		// network gear is addressed by IP from a list; there is no known_hosts to check against
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.connectTimeout,
		Config: ssh.Config{
			KeyExchanges: sshKeyExchanges,
			Ciphers:      sshCiphers,
		},
	}

	addr := t.hostPort()
	dialer := net.Dialer{Timeout: d.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(d.connectTimeout))
	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, classifySSHError(addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(cc, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: open session: %v", ErrProtocol, err)
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 38400,
		ssh.TTY_OP_OSPEED: 38400,
	}
	if err := sess.RequestPty("vt100", 24, 511, modes); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: request pty: %v", ErrProtocol, err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: stdin: %v", ErrProtocol, err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: stdout: %v", ErrProtocol, err)
	}
	if err := sess.Shell(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: start shell: %v", ErrProtocol, err)
	}

	sh := newShell(stdout, stdin, sshCloser{sess: sess, client: client}, d.commandTimeout, d.logger)
	if err := sh.learnPrompt(ctx, d.connectTimeout); err != nil {
		sh.Close()
		return nil, fmt.Errorf("%s: %w", addr, err)
	}
	if err := sh.prepare(ctx); err != nil {
		sh.Close()
		return nil, fmt.Errorf("%s: %w", addr, err)
	}
	d.logger.Debugf("%s: ssh session ready, prompt %s", addr, sh.hostPrompt)
	return sh, nil
}

type sshCloser struct {
	sess   *ssh.Session
	client *ssh.Client
}

func (c sshCloser) Close() error {
	_ = c.sess.Close()
	return c.client.Close()
}

func classifySSHError(addr string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"):
		return fmt.Errorf("%w: %s: %v", ErrAuth, addr, err)
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "i/o timeout"):
		return fmt.Errorf("%w: %s: handshake: %v", ErrTimeout, addr, err)
	default:
		return fmt.Errorf("%w: %s: handshake: %v", ErrProtocol, addr, err)
	}
}
