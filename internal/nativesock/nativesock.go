// Package nativesock writes entries to a journald socket using the native
// protocol. It serves journald namespaces, which libsystemd's send calls
// cannot address, and journald-compatible test listeners.
package nativesock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultPath is the socket of the default journald namespace.
const DefaultPath = "/run/systemd/journal/socket"

// EnvSocket overrides the socket path for every namespace.
const EnvSocket = "SDJOURNAL_SOCKET"

// SocketPath returns the socket of a journald namespace. The empty
// namespace is the default one.
func SocketPath(namespace string) string {
	if path := os.Getenv(EnvSocket); path != "" {
		return path
	}
	if namespace == "" {
		return DefaultPath
	}
	return "/run/systemd/journal." + namespace + "/socket"
}

// Sink sends entries to one socket. It reconnects after a failed write.
type Sink struct {
	path string

	mu   sync.Mutex
	conn *net.UnixConn
}

// New returns a sink for path. Nothing is dialed until the first Write.
func New(path string) *Sink {
	if path == "" {
		path = DefaultPath
	}
	return &Sink{path: path}
}

func (s *Sink) Path() string { return s.path }

// Write sends one entry made of "FIELD=value" items. Entries too large for
// a datagram are passed as a file descriptor, as journald expects.
func (s *Sink) Write(fields [][]byte) error {
	data, err := Encode(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureConn(); err != nil {
		return err
	}

	_, err = s.conn.Write(data)
	if errors.Is(err, unix.EMSGSIZE) || errors.Is(err, unix.ENOBUFS) {
		err = s.writeViaFile(data)
	}
	if err != nil {
		s.conn.Close()
		s.conn = nil
		return fmt.Errorf("writing to journal socket %s: %w", s.path, err)
	}
	return nil
}

func (s *Sink) writeViaFile(data []byte) error {
	f, err := os.CreateTemp("/dev/shm", "sdjournal.")
	if err != nil {
		f, err = os.CreateTemp("", "sdjournal.")
		if err != nil {
			return err
		}
	}
	defer f.Close()
	if err := os.Remove(f.Name()); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	_, _, err = s.conn.WriteMsgUnix(nil, unix.UnixRights(int(f.Fd())), nil)
	return err
}

// Close drops the connection. The sink can still be written to.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Caller must hold s.mu.
func (s *Sink) ensureConn() error {
	if s.conn != nil {
		return nil
	}
	addr := &net.UnixAddr{Name: s.path, Net: "unixgram"}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return fmt.Errorf("connecting to journal socket %s: %w", s.path, err)
	}
	s.conn = conn
	return nil
}

// Encode builds the datagram for one entry. Values without a newline are
// sent as FIELD=value lines; the rest as FIELD, a newline, a little-endian
// 64-bit length and the raw value.
func Encode(fields [][]byte) ([]byte, error) {
	if len(fields) == 0 {
		return nil, errors.New("empty journal entry")
	}
	var buf []byte
	for _, f := range fields {
		eq := bytes.IndexByte(f, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("journal field %q has no name", truncate(f))
		}
		name, value := f[:eq], f[eq+1:]
		if bytes.IndexByte(name, '\n') >= 0 {
			return nil, fmt.Errorf("journal field name %q contains a newline", name)
		}
		buf = append(buf, name...)
		if bytes.IndexByte(value, '\n') >= 0 {
			buf = append(buf, '\n')
			buf = binary.LittleEndian.AppendUint64(buf, uint64(len(value)))
		} else {
			buf = append(buf, '=')
		}
		buf = append(buf, value...)
		buf = append(buf, '\n')
	}
	return buf, nil
}

// Decode parses a datagram produced by Encode back into fields.
func Decode(data []byte) ([][]byte, error) {
	var out [][]byte
	for len(data) > 0 {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			return nil, errors.New("journal datagram: missing newline")
		}
		line := data[:nl]
		if eq := bytes.IndexByte(line, '='); eq >= 0 {
			out = append(out, append([]byte(nil), line...))
			data = data[nl+1:]
			continue
		}
		rest := data[nl+1:]
		if len(rest) < 8 {
			return nil, fmt.Errorf("journal datagram: short length for %q", line)
		}
		n := binary.LittleEndian.Uint64(rest)
		rest = rest[8:]
		if n >= uint64(len(rest)) || rest[n] != '\n' {
			return nil, fmt.Errorf("journal datagram: bad binary value for %q", line)
		}
		f := make([]byte, 0, len(line)+1+int(n))
		f = append(append(append(f, line...), '='), rest[:n]...)
		out = append(out, f)
		data = rest[n+1:]
	}
	return out, nil
}

func truncate(b []byte) []byte {
	if len(b) > 32 {
		return b[:32]
	}
	return b
}
