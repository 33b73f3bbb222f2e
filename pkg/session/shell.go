package session

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
)

var (
	anyPrompt      = regexp.MustCompile(`(?:^|[\r\n])([\w.\-]+)(\([\w.\-]*\))?[>#]\s*$`)
	passwordPrompt = regexp.MustCompile(`(?i)password:\s*$`)
	usernamePrompt = regexp.MustCompile(`(?i)(user\s*name|login):\s*$`)
	loginFailure   = regexp.MustCompile(`(?i)(authentication failed|login invalid|login incorrect|access denied|bad passwords)`)
)

// pagingCommands are sent once after login so long output arrives in one piece.
var pagingCommands = []string{"terminal length 0", "terminal width 511"}

// shell is the prompt-driven CLI driver shared by the SSH and Telnet transports.
type shell struct {
	w       io.Writer
	closer  io.Closer
	timeout time.Duration
	logger  *logging.Logger

	chunks  chan []byte
	done    chan struct{}
	readErr error
	buf     []byte

	prompt     *regexp.Regexp
	hostPrompt string
	privileged bool

	closeOnce sync.Once
	closeErr  error
}

func newShell(r io.Reader, w io.Writer, closer io.Closer, timeout time.Duration, logger *logging.Logger) *shell {
	s := &shell{
		w:       w,
		closer:  closer,
		timeout: timeout,
		logger:  logger,
		chunks:  make(chan []byte, 16),
		done:    make(chan struct{}),
	}
	go s.pump(r)
	return s
}

func (s *shell) pump(r io.Reader) {
	defer close(s.chunks)
	b := make([]byte, 4096)
	for {
		n, err := r.Read(b)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, b[:n])
			select {
			case s.chunks <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.readErr = err
			return
		}
	}
}

// readUntil consumes input until one of res matches the end of the buffer and
// returns the consumed text and the index of the matching expression.
func (s *shell) readUntil(ctx context.Context, timeout time.Duration, res ...*regexp.Regexp) (string, int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		for i, re := range res {
			if re.Match(s.buf) {
				out := string(s.buf)
				s.buf = s.buf[:0]
				return out, i, nil
			}
		}
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				return string(s.buf), -1, fmt.Errorf("%w: connection closed: %v", ErrProtocol, s.readErr)
			}
			s.buf = append(s.buf, chunk...)
		case <-timer.C:
			return string(s.buf), -1, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case <-ctx.Done():
			return string(s.buf), -1, ctx.Err()
		}
	}
}

func (s *shell) send(line string) error {
	if _, err := io.WriteString(s.w, line+"\n"); err != nil {
		return fmt.Errorf("%w: write: %v", ErrProtocol, err)
	}
	return nil
}

// learnPrompt reads up to the first prompt and pins the prompt pattern to the
// device's own base prompt.
func (s *shell) learnPrompt(ctx context.Context, timeout time.Duration) error {
	out, _, err := s.readUntil(ctx, timeout, anyPrompt)
	if err != nil {
		return fmt.Errorf("waiting for prompt: %w", err)
	}
	s.setPrompt(out)
	return nil
}

func (s *shell) setPrompt(out string) {
	m := anyPrompt.FindStringSubmatch(out)
	if m == nil {
		return
	}
	s.hostPrompt = m[1]
	s.prompt = regexp.MustCompile(`(?:^|[\r\n])` + regexp.QuoteMeta(m[1]) + `(\([\w.\-]*\))?[>#]\s*$`)
	s.privileged = strings.HasSuffix(strings.TrimSpace(out), "#")
}

// prepare disables paging.
func (s *shell) prepare(ctx context.Context) error {
	for _, cmd := range pagingCommands {
		if _, err := s.Execute(ctx, cmd); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
	return nil
}

func (s *shell) Execute(ctx context.Context, command string) (string, error) {
	if err := s.send(command); err != nil {
		return "", err
	}
	out, _, err := s.readUntil(ctx, s.timeout, s.prompt)
	if err != nil {
		return "", fmt.Errorf("%q: %w", command, err)
	}
	s.privileged = strings.HasSuffix(strings.TrimSpace(out), "#")
	return cleanOutput(out, command), nil
}

func (s *shell) Enable(ctx context.Context, secret string) error {
	if s.privileged {
		return nil
	}
	if err := s.send("enable"); err != nil {
		return err
	}
	out, idx, err := s.readUntil(ctx, s.timeout, passwordPrompt, s.prompt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrivilege, err)
	}
	if idx == 0 {
		if err := s.send(secret); err != nil {
			return err
		}
		out, idx, err = s.readUntil(ctx, s.timeout, s.prompt, passwordPrompt)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPrivilege, err)
		}
		if idx == 1 {
			return fmt.Errorf("%w: enable secret rejected", ErrPrivilege)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "#") {
		return fmt.Errorf("%w: still in user mode", ErrPrivilege)
	}
	s.privileged = true
	return nil
}

func (s *shell) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.closer.Close()
	})
	return s.closeErr
}

// cleanOutput normalises line endings and strips the command echo and the trailing prompt.
func cleanOutput(raw, command string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "")
	lines := strings.Split(raw, "\n")
	if len(lines) > 0 && strings.Contains(lines[0], command) {
		lines = lines[1:]
	}
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
