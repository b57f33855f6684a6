//go:build !linux || !cgo

package id128

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestReadIDFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good")
	require.NoError(t, os.WriteFile(good, []byte(coredumpMessageID+"\n"), 0o644))
	id, err := readID("read", good)
	require.NoError(t, err)
	assert.Equal(t, coredumpMessageID, id.String())

	_, err = readID("read", filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, unix.ENOENT)

	for name, content := range map[string]string{
		"garbage": "not an id\n",
		"null":    "00000000000000000000000000000000\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := readID("read", path)
		assert.ErrorIs(t, err, unix.EINVAL, name)
	}
}
