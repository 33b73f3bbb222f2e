package session

import (
	"bufio"
	"io"
	"strings"
)

// fakeIOS scripts just enough of an IOS CLI to exercise the driver.
type fakeIOS struct {
	hostname string
	secret   string
	// username/password, when set, make the device ask for them before the prompt
	username string
	password string
	outputs  map[string]string
	hang     map[string]bool
	stop     chan struct{}
}

func newFakeIOS(hostname string) *fakeIOS {
	return &fakeIOS{
		hostname: hostname,
		secret:   "cisco",
		outputs: map[string]string{
			"show run | inc hostname": "hostname " + hostname,
			"show version":            "Cisco IOS Software, C2960 Software\r\n" + hostname + " uptime is 3 weeks",
		},
		hang: map[string]bool{},
		stop: make(chan struct{}),
	}
}

func (f *fakeIOS) serve(rw io.ReadWriteCloser) {
	defer rw.Close()
	r := bufio.NewReader(rw)
	readLine := func() (string, bool) {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", false
		}
		return strings.TrimRight(line, "\r\n"), true
	}
	write := func(s string) bool {
		_, err := io.WriteString(rw, s)
		return err == nil
	}

	if f.username != "" {
		write("\r\nUser Access Verification\r\n\r\nUsername: ")
		user, ok := readLine()
		if !ok {
			return
		}
		write(user + "\r\nPassword: ")
		pass, ok := readLine()
		if !ok {
			return
		}
		if user != f.username || pass != f.password {
			write("\r\n% Authentication failed\r\n\r\nUsername: ")
			readLine()
			return
		}
	}

	privileged := false
	prompt := func() string {
		if privileged {
			return f.hostname + "#"
		}
		return f.hostname + ">"
	}

	write("\r\n" + prompt())
	for {
		line, ok := readLine()
		if !ok {
			return
		}
		write(line + "\r\n")
		switch {
		case line == "exit":
			return
		case line == "enable":
			if privileged {
				write(prompt())
				continue
			}
			write("Password: ")
			secret, ok := readLine()
			if !ok {
				return
			}
			write("\r\n")
			if secret == f.secret {
				privileged = true
			} else {
				write("% Bad secrets\r\n\r\n")
			}
			write(prompt())
		case strings.HasPrefix(line, "terminal "):
			write(prompt())
		case f.hang[line]:
			<-f.stop
			return
		default:
			out, known := f.outputs[line]
			if !known {
				out = "                ^\r\n% Invalid input detected at '^' marker.\r\n"
			}
			write(out + "\r\n" + prompt())
		}
	}
}
