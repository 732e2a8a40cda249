package server

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iedon/meta-fileserver/config"
	"github.com/iedon/meta-fileserver/site"
)

// mockConn implements net.Conn for testing
type mockConn struct {
	readData  *strings.Reader
	readErr   error
	writeData *strings.Builder
	closed    bool
	deadline  time.Time
	mu        sync.Mutex
}

func newMockConn(data string) *mockConn {
	return &mockConn{
		readData:  strings.NewReader(data),
		writeData: &strings.Builder{},
	}
}

func (m *mockConn) Read(b []byte) (n int, err error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.readData.Read(b)
}

func (m *mockConn) Write(b []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeData.Write(b)
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8080}
}

func (m *mockConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12345}
}

func (m *mockConn) SetDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadline = t
	return nil
}

func (m *mockConn) SetReadDeadline(t time.Time) error {
	return m.SetDeadline(t)
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	return m.SetDeadline(t)
}

func (m *mockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) GetWritten() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeData.String()
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var fixedNow = time.Date(1991, 11, 27, 12, 0, 0, 0, time.UTC)

type fixture struct {
	root   string
	server *Server
	errlog *bytes.Buffer
}

// newFixture serves root/docs/{a.txt,.secret} through a real page service.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	if err := os.MkdirAll(docs, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string]string{"a.txt": "0123456789", ".secret": "hidden"} {
		if err := os.WriteFile(filepath.Join(docs, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{
		Root:         root,
		MetaRoot:     ".meta",
		Theme:        "css/theme.css",
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaxWorkers:   4,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newFixtureWith(t, cfg, site.NewService(cfg, logger, "meta-fileserver/test"))
}

func newFixtureWith(t *testing.T, cfg *config.Config, pages Pages) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(cfg, pages, logger, "meta-fileserver/test")
	srv.now = func() time.Time { return fixedNow }

	errlog := &bytes.Buffer{}
	srv.SetErrorLog(slog.New(slog.NewTextHandler(errlog, nil)))
	return &fixture{root: cfg.Root, server: srv, errlog: errlog}
}

// roundTrip runs the handler over an in-memory connection and returns the raw response.
func (f *fixture) roundTrip(t *testing.T, request string) string {
	t.Helper()
	conn := newMockConn(request)
	f.server.handle(conn)
	if !conn.IsClosed() {
		t.Error("connection left open")
	}
	return conn.GetWritten()
}

type parsedResponse struct {
	statusLine string
	headers    []string
	body       string
}

func (p parsedResponse) header(name string) string {
	for _, h := range p.headers {
		if key, value, ok := strings.Cut(h, ": "); ok && key == name {
			return value
		}
	}
	return ""
}

func parseResponse(t *testing.T, raw string) parsedResponse {
	t.Helper()
	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	if !ok {
		t.Fatalf("response has no header terminator: %q", raw)
	}
	lines := strings.Split(head, "\r\n")
	return parsedResponse{statusLine: lines[0], headers: lines[1:], body: body}
}
