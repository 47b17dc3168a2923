package tcp

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
)

// LineTransport frames discrete messages as newline-terminated lines over a
// net.Conn, satisfying the session core's Transport port.
type LineTransport struct {
	conn net.Conn
	r    *bufio.Reader

	wmu sync.Mutex
}

// NewLineTransport wraps an established connection.
func NewLineTransport(conn net.Conn) *LineTransport {
	return &LineTransport{
		conn: conn,
		r:    bufio.NewReader(conn),
	}
}

// Send writes one message as a single line.
func (t *LineTransport) Send(message string) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	_, err := t.conn.Write([]byte(message + "\n"))
	return err
}

// Receive blocks until the next line. A trailing unterminated line before
// EOF still counts as a message.
func (t *LineTransport) Receive() (string, error) {
	line, err := t.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Close closes the connection, unblocking a pending Receive.
func (t *LineTransport) Close() error {
	return t.conn.Close()
}
