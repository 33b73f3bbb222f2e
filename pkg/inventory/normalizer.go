package inventory

import (
	"strings"
)

// ParseHostname extracts the hostname from `show run | inc hostname` style output:
// the second token of the first line that starts with "hostname".
func ParseHostname(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "hostname" {
			name := NormalizeHostname(fields[1])
			return name, name != ""
		}
	}
	return "", false
}

// NormalizeHostname makes a device-reported name safe to use as a file name.
func NormalizeHostname(name string) string {
	name = strings.Trim(strings.TrimSpace(name), `"`)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == 0:
			return '_'
		case r < 0x20:
			return -1
		}
		return r
	}, strings.TrimLeft(name, "."))
}
