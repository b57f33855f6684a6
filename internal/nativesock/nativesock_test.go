package nativesock

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (*net.UnixConn, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "nativesock")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "socket")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, path
}

func TestEncodeTextAndBinary(t *testing.T) {
	data, err := Encode([][]byte{
		[]byte("MESSAGE=hello"),
		[]byte("TRACE=a\nb"),
		[]byte("EMPTY="),
	})
	require.NoError(t, err)

	want := "MESSAGE=hello\n" +
		"TRACE\n\x03\x00\x00\x00\x00\x00\x00\x00a\nb\n" +
		"EMPTY=\n"
	assert.Equal(t, want, string(data))
}

func TestEncodeRejectsMalformedFields(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
	_, err = Encode([][]byte{[]byte("=value")})
	assert.Error(t, err)
	_, err = Encode([][]byte{[]byte("NOVALUE")})
	assert.Error(t, err)
}

func TestDecodeInvertsEncode(t *testing.T) {
	fields := [][]byte{
		[]byte("MESSAGE=multi\nline"),
		[]byte("PRIORITY=6"),
		[]byte("BLOB=\x00\xff\n"),
	}
	data, err := Encode(fields)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, fields, got)

	_, err = Decode([]byte("TRACE\n\xff\xff\xff\xff\xff\xff\xff\xffx\n"))
	assert.Error(t, err)
}

func TestSinkWritesDatagrams(t *testing.T) {
	conn, path := listen(t)
	s := New(path)
	defer s.Close()

	require.NoError(t, s.Write([][]byte{[]byte("MESSAGE=one"), []byte("PRIORITY=5")}))
	require.NoError(t, s.Write([][]byte{[]byte("MESSAGE=two\nlines")}))

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "MESSAGE=one\nPRIORITY=5\n", string(buf[:n]))

	n, err = conn.Read(buf)
	require.NoError(t, err)
	fields, err := Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("MESSAGE=two\nlines")}, fields)
}

func TestSinkReportsMissingSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "nativesock")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s := New(filepath.Join(dir, "missing"))
	err = s.Write([][]byte{[]byte("MESSAGE=x")})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "connecting to journal socket"))
}

func TestSocketPath(t *testing.T) {
	t.Setenv(EnvSocket, "")
	assert.Equal(t, DefaultPath, SocketPath(""))
	assert.Equal(t, "/run/systemd/journal.audit/socket", SocketPath("audit"))

	t.Setenv(EnvSocket, "/tmp/journal.sock")
	assert.Equal(t, "/tmp/journal.sock", SocketPath("audit"))
	assert.Equal(t, DefaultPath, New("").Path())
}
