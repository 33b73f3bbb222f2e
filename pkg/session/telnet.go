package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ziutek/telnet"
)

func (d *CLIDialer) dialTelnet(ctx context.Context, t Target) (Session, error) {
	addr := t.hostPort()
	conn, err := telnet.DialTimeout("tcp", addr, d.connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, addr, err)
	}
	conn.SetUnixWriteMode(true)

	sh := newShell(conn, conn, conn, d.commandTimeout, d.logger)
	if err := sh.login(ctx, t.Username, t.Password, d.connectTimeout); err != nil {
		sh.Close()
		return nil, fmt.Errorf("%s: %w", addr, err)
	}
	if err := sh.prepare(ctx); err != nil {
		sh.Close()
		return nil, fmt.Errorf("%s: %w", addr, err)
	}
	d.logger.Debugf("%s: telnet session ready, prompt %s", addr, sh.hostPrompt)
	return sh, nil
}

// login walks the Username:/Password: exchange. Devices configured with only a
// line password skip straight to Password:, and ones with no login land on the prompt.
func (s *shell) login(ctx context.Context, username, password string, timeout time.Duration) error {
	out, idx, err := s.readUntil(ctx, timeout, usernamePrompt, passwordPrompt, anyPrompt)
	if err != nil {
		return fmt.Errorf("waiting for login prompt: %w", err)
	}
	if idx == 0 {
		if err := s.send(username); err != nil {
			return err
		}
		out, idx, err = s.readUntil(ctx, timeout, passwordPrompt, anyPrompt)
		if err != nil {
			return fmt.Errorf("waiting for password prompt: %w", err)
		}
		idx++
	}
	if idx == 1 {
		if err := s.send(password); err != nil {
			return err
		}
		out, idx, err = s.readUntil(ctx, timeout, anyPrompt, usernamePrompt, passwordPrompt)
		if err != nil {
			if loginFailure.MatchString(out) {
				return fmt.Errorf("%w: %s", ErrAuth, failureReason(out))
			}
			return fmt.Errorf("waiting for prompt after login: %w", err)
		}
		if idx != 0 {
			return fmt.Errorf("%w: %s", ErrAuth, failureReason(out))
		}
	}
	s.setPrompt(out)
	return nil
}

func failureReason(out string) string {
	if m := loginFailure.FindString(out); m != "" {
		return strings.ToLower(m)
	}
	return "credentials rejected"
}
