// Package transport provides the duplex byte streams the protocol runs over:
// the worker's standard input/output, a unix domain socket, or an in-process
// pipe for tests.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// Stream is a duplex byte stream.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// stdioStream joins a reader and a writer into one Stream.
type stdioStream struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (s *stdioStream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *stdioStream) Write(p []byte) (int, error) { return s.out.Write(p) }

// Close closes both halves and reports the first error.
func (s *stdioStream) Close() error {
	errIn := s.in.Close()
	errOut := s.out.Close()
	return errors.Join(errIn, errOut)
}

// Stdio returns the process's standard input and output as a Stream.
// Nothing else may write to standard output while the stream is in use.
func Stdio() Stream {
	return &stdioStream{in: os.Stdin, out: os.Stdout}
}

// Join combines a reader and a writer, such as the pipes of a child process,
// into a Stream.
func Join(r io.ReadCloser, w io.WriteCloser) Stream {
	return &stdioStream{in: r, out: w}
}

// Pipe returns two connected in-process streams. Writes on one end block
// until the other end reads them.
func Pipe() (Stream, Stream) {
	a, b := net.Pipe()
	return a, b
}

// ListenUnix listens on a unix domain socket at path and returns the first
// accepted connection. The listener is closed once a connection is accepted or
// ctx is done. A stale socket file at path is removed first.
func ListenUnix(ctx context.Context, path string) (Stream, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %q: %w", path, err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", path, err)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		accepted <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		_ = ln.Close()
		return nil, ctx.Err()
	case r := <-accepted:
		_ = ln.Close()
		if r.err != nil {
			return nil, fmt.Errorf("accept on %q: %w", path, r.err)
		}
		return r.conn, nil
	}
}

// DialUnix connects to a unix domain socket at path.
func DialUnix(ctx context.Context, path string) (Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", path, err)
	}
	return conn, nil
}
