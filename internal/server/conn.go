package server

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"time"
)

// errLineTooLong reports a line that exceeded the connection's read bound.
// The remainder of the oversized line is discarded; the session survives.
var errLineTooLong = errors.New("line exceeds maximum length")

// lineConn abstracts a client connection as a newline-delimited text stream.
// The TCP and WebSocket transports both implement it, so the session loop
// and broadcast fan-out are transport-agnostic.
type lineConn interface {
	// ReadLine blocks until a full line arrives. The returned line has no
	// trailing newline.
	ReadLine() (string, error)

	// WriteLine writes one line, appending the newline, bounded by the
	// configured write deadline.
	WriteLine(line string) error

	// Close releases the underlying transport handle. Safe to call twice.
	Close() error

	// RemoteAddr identifies the peer for logs.
	RemoteAddr() string
}

// tcpConn is the plain-TCP implementation of lineConn. Reads are bounded by
// maxLineBytes so a single client cannot grow a line without limit.
type tcpConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeTimeout time.Duration
	maxLineBytes int
}

func newTCPConn(conn net.Conn, writeTimeout time.Duration, maxLineBytes int) *tcpConn {
	return &tcpConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writeTimeout: writeTimeout,
		maxLineBytes: maxLineBytes,
	}
}

func (c *tcpConn) ReadLine() (string, error) {
	line := make([]byte, 0, 256)
	for {
		chunk, err := c.reader.ReadSlice('\n')
		if len(line) <= c.maxLineBytes {
			line = append(line, chunk...)
		}
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return "", err
		}
	}
	if len(line) > c.maxLineBytes {
		return "", errLineTooLong
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

func (c *tcpConn) WriteLine(line string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
