package inventory

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
)

var (
	// ErrInvalidAddress marks a candidate that is not a unicast IPv4 address.
	ErrInvalidAddress = errors.New("invalid unicast IPv4 address")
	// ErrNoInputFiles is returned when no address list can be found.
	ErrNoInputFiles = errors.New("no address list files found")
	// ErrReadInput is returned when the chosen address list cannot be read.
	ErrReadInput = errors.New("read address list")
)

const octet = `(25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])`

var dottedQuad = regexp.MustCompile(`^` + octet + `\.` + octet + `\.` + octet + `\.` + octet + `$`)

// maxUnicastFirstOctet excludes class D (multicast) and class E space.
const maxUnicastFirstOctet = 223

// ValidAddress reports whether candidate is a dotted-quad IPv4 address whose first
// octet is at most 223.
func ValidAddress(candidate string) bool {
	_, err := ParseAddress(candidate)
	return err == nil
}

// ParseAddress validates candidate and returns it as an address.
func ParseAddress(candidate string) (netip.Addr, error) {
	if !dottedQuad.MatchString(candidate) {
		return netip.Addr{}, fmt.Errorf("%q: %w", candidate, ErrInvalidAddress)
	}
	first, _ := strconv.Atoi(candidate[:strings.IndexByte(candidate, '.')])
	if first > maxUnicastFirstOctet {
		return netip.Addr{}, fmt.Errorf("%q is not unicast: %w", candidate, ErrInvalidAddress)
	}
	addr, err := netip.ParseAddr(candidate)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%q: %w", candidate, ErrInvalidAddress)
	}
	return addr, nil
}

// maxLineLen bounds how much of an input line is considered; no valid address is
// longer than 15 characters.
const maxLineLen = 64

// ParseAddresses reads one candidate per line. Trailing whitespace is stripped and
// lines that fail validation, however long, are dropped with a warning. An empty
// result is not an error.
func ParseAddresses(r io.Reader, logger *logging.Logger) ([]netip.Addr, error) {
	var addrs []netip.Addr
	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		raw, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("%w: %v", ErrReadInput, readErr)
		}
		if readErr == io.EOF && raw == "" {
			break
		}
		line := strings.TrimRight(raw, " \t\r\n")
		switch {
		case line == "":
			logger.Debugf("line %d: blank, skipping", lineNo)
		case len(line) > maxLineLen:
			logger.Warnf("line %d: %d bytes, too long for an address, excluding", lineNo, len(line))
		default:
			addr, err := ParseAddress(line)
			if err != nil {
				logger.Warnf("line %d: %v, excluding", lineNo, err)
				break
			}
			addrs = append(addrs, addr)
		}
		if readErr == io.EOF {
			break
		}
	}
	return addrs, nil
}

// ReadAddresses opens path and parses it with ParseAddresses.
func ReadAddresses(path string, logger *logging.Logger) ([]netip.Addr, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadInput, err)
	}
	defer f.Close()
	logger.Infof("reading %s", path)
	addrs, err := ParseAddresses(f, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Infof("%s: %d valid addresses", path, len(addrs))
	return addrs, nil
}

// FindAddressFiles lists regular files in dir whose extension is one of exts,
// sorted by name.
func FindAddressFiles(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	wanted := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		wanted[strings.ToLower(ext)] = struct{}{}
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ok := wanted[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w (extensions %s)", dir, ErrNoInputFiles, strings.Join(exts, ", "))
	}
	sort.Strings(files)
	return files, nil
}
