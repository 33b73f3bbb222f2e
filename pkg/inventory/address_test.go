package inventory

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x1thexxx-lgtm/devconf/pkg/logging"
)

func TestValidAddress(t *testing.T) {
	cases := map[string]bool{
		"192.168.1.1":     true,
		"10.0.0.1":        true,
		"0.0.0.0":         true,
		"223.255.255.255": true,
		"224.0.0.1":       false,
		"224.5.5.5":       false,
		"240.0.0.1":       false,
		"255.255.255.255": false,
		"999.1.1.1":       false,
		"300.1.1.1":       false,
		"1.2.3.256":       false,
		"01.2.3.4":        false,
		"1.2.3":           false,
		"1.2.3.4.5":       false,
		"1.2.3.4 ":        false,
		" 1.2.3.4":        false,
		"a.b.c.d":         false,
		"::1":             false,
		"":                false,
	}
	for in, want := range cases {
		assert.Equal(t, want, ValidAddress(in), "ValidAddress(%q)", in)
	}
}

func TestParseAddressWrapsSentinel(t *testing.T) {
	_, err := ParseAddress("224.0.0.1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidAddress))

	addr, err := ParseAddress("172.16.0.9")
	require.NoError(t, err)
	assert.Equal(t, "172.16.0.9", addr.String())
}

func TestParseAddressesDropsInvalidLines(t *testing.T) {
	input := "10.0.0.1\r\n\n300.1.1.1\n10.0.0.2  \n224.5.5.5\nrouter1\n10.0.0.3"
	addrs, err := ParseAddresses(strings.NewReader(input), logging.Discard())
	require.NoError(t, err)

	var got []string
	for _, a := range addrs {
		got = append(got, a.String())
	}
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, got)
}

func TestParseAddressesSurvivesOverlongLine(t *testing.T) {
	input := "10.0.0.1\n" + strings.Repeat("x", 70*1024) + "\n10.0.0.2\n"
	addrs, err := ParseAddresses(strings.NewReader(input), logging.Discard())
	require.NoError(t, err)

	var got []string
	for _, a := range addrs {
		got = append(got, a.String())
	}
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, got)
}

func TestParseAddressesReadFailure(t *testing.T) {
	_, err := ParseAddresses(iotest.ErrReader(errors.New("device not ready")), logging.Discard())
	assert.True(t, errors.Is(err, ErrReadInput))
}

func TestParseAddressesEmpty(t *testing.T) {
	addrs, err := ParseAddresses(strings.NewReader("\n\nnot-an-ip\n"), logging.Discard())
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestReadAddressesMissingFile(t *testing.T) {
	_, err := ReadAddresses(filepath.Join(t.TempDir(), "missing.txt"), logging.Discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReadInput))
}

func TestFindAddressFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.CSV", "notes.md", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.txt"), 0o755))

	files, err := FindAddressFiles(dir, []string{".csv", ".txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.CSV"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "c.txt"),
	}, files)

	_, err = FindAddressFiles(dir, []string{".lst"})
	assert.True(t, errors.Is(err, ErrNoInputFiles))
}
