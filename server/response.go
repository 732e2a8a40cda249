package server

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const htmlContentType = "text/html; charset=utf-8"

var reasons = map[int]string{
	200: "OK",
	400: "Bad Request",
	404: "File Not Found",
	500: "Internal Server Error",
}

func reasonPhrase(status int) string {
	if reason, ok := reasons[status]; ok {
		return reason
	}
	return http.StatusText(status)
}

type response struct {
	status      int
	contentType string
	length      int64
	body        io.Reader
}

// responseWriter frames a single response onto the connection. Headers are
// emitted in a fixed order and the body is written only when the method asks
// for it.
type responseWriter struct {
	w           *bufio.Writer
	server      string
	now         func() time.Time
	wroteHeader bool
	bytes       int64
}

func newResponseWriter(w io.Writer, server string, now func() time.Time) *responseWriter {
	return &responseWriter{w: bufio.NewWriter(w), server: server, now: now}
}

func (rw *responseWriter) write(m method, resp response) error {
	rw.wroteHeader = true
	headers := [][2]string{
		{"Date", rw.now().UTC().Format(http.TimeFormat)},
		{"Server", rw.server},
		{"Connection", "Close"},
		{"Content-Type", resp.contentType},
		{"Content-Length", strconv.FormatInt(resp.length, 10)},
	}

	if _, err := fmt.Fprintf(rw.w, "HTTP/1.1 %d %s\r\n", resp.status, reasonPhrase(resp.status)); err != nil {
		return err
	}
	for _, h := range headers {
		if _, err := fmt.Fprintf(rw.w, "%s: %s\r\n", h[0], h[1]); err != nil {
			return err
		}
	}
	if _, err := rw.w.WriteString("\r\n"); err != nil {
		return err
	}

	if m.sendsBody() && resp.body != nil {
		n, err := io.Copy(rw.w, resp.body)
		rw.bytes += n
		if err != nil {
			return fmt.Errorf("write body: %w", err)
		}
	}
	return rw.w.Flush()
}
