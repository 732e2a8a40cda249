package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/iedon/meta-fileserver/fsutil"
)

// exchange carries the state of one connection through the handler.
type exchange struct {
	conn   net.Conn
	log    *slog.Logger
	method method
	out    *responseWriter
	start  time.Time
}

// handle serves exactly one request on conn and closes it. Every failure is
// turned into a response or, for transport errors, logged and dropped.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	id := uuid.NewString()
	ex := &exchange{
		conn:   conn,
		log:    s.logger.With("conn", id, "remote", conn.RemoteAddr().String()),
		method: methodUnknown,
		out:    newResponseWriter(conn, s.serverHeader, s.now),
		start:  s.now(),
	}

	defer func() {
		if r := recover(); r != nil {
			s.errlog.Error("panic while handling request", "conn", id, "panic", r, "stack", string(debug.Stack()))
			if ex.out.wroteHeader {
				return
			}
			method := ex.method
			if method == methodUnknown {
				method = methodGet
			}
			s.respondError(ex, method, 500)
		}
	}()

	s.serve(ex)
}

func (s *Server) serve(ex *exchange) {
	if err := ex.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		ex.log.Warn("set read deadline", "err", err)
	}

	buf := make([]byte, maxRequestSize)
	n, err := ex.conn.Read(buf)
	if err != nil && n == 0 {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			ex.log.Info("request read timed out")
			s.respondError(ex, methodGet, 400)
		case errors.Is(err, io.EOF):
			ex.log.Info("empty request")
			s.respondError(ex, methodGet, 400)
		default:
			ex.log.Warn("read request", "err", err)
		}
		return
	}
	if n == 0 {
		s.respondError(ex, methodGet, 400)
		return
	}

	req, err := parseRequest(buf[:n])
	ex.method = req.method
	if err != nil {
		ex.log.Info("request", "method", req.method, "err", err)
		s.respondError(ex, methodGet, 400)
		return
	}

	target, err := resolveTarget(s.cfg.Root, req.target)
	if err != nil {
		ex.log.Info("request", "method", req.method, "target", req.target, "err", err)
		if errors.Is(err, errBadTarget) {
			s.respondError(ex, methodGet, 400)
		} else {
			s.respondError(ex, req.method, 404)
		}
		return
	}
	ex.log.Info("request", "method", req.method, "path", target)

	info, err := os.Stat(target)
	switch {
	case err != nil && (errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)):
		s.respondError(ex, req.method, 404)
	case err != nil:
		s.internalError(ex, fmt.Errorf("stat %s: %w", target, err))
	case info.IsDir():
		s.serveDirectory(ex, target)
	case info.Mode().IsRegular():
		s.serveFile(ex, target, info)
	default:
		s.respondError(ex, req.method, 404)
	}
}

func (s *Server) serveDirectory(ex *exchange, dir string) {
	page, err := s.pages.RenderDirectory(dir)
	if err != nil {
		s.internalError(ex, err)
		return
	}
	s.respond(ex, ex.method, response{
		status:      200,
		contentType: htmlContentType,
		length:      int64(len(page)),
		body:        strings.NewReader(page),
	})
}

func (s *Server) serveFile(ex *exchange, path string, info fs.FileInfo) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.respondError(ex, ex.method, 404)
			return
		}
		s.internalError(ex, fmt.Errorf("open %s: %w", path, err))
		return
	}
	defer file.Close()

	s.respond(ex, ex.method, response{
		status:      200,
		contentType: fsutil.ContentType(path),
		length:      info.Size(),
		body:        io.LimitReader(file, info.Size()),
	})
}

func (s *Server) internalError(ex *exchange, err error) {
	s.errlog.Error("request failed", "err", err)
	method := ex.method
	if method == methodUnknown {
		method = methodGet
	}
	s.respondError(ex, method, 500)
}

// respondError sends the cached error page for status. If the page itself
// cannot be built, the reason phrase is sent as plain text.
func (s *Server) respondError(ex *exchange, m method, status int) {
	reason := reasonPhrase(status)
	resp := response{status: status, contentType: htmlContentType}

	page, err := s.pages.RenderError(status, reason)
	if err != nil {
		s.errlog.Error("render error page", "status", status, "err", err)
		page = reason
		resp.contentType = "text/plain; charset=utf-8"
	}
	resp.length = int64(len(page))
	resp.body = strings.NewReader(page)
	s.respond(ex, m, resp)
}

func (s *Server) respond(ex *exchange, m method, resp response) {
	if err := ex.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		ex.log.Warn("set write deadline", "err", err)
	}
	if err := ex.out.write(m, resp); err != nil {
		ex.log.Warn("write response", "status", resp.status, "err", err)
		return
	}
	ex.log.Info("response",
		"status", resp.status,
		"reason", reasonPhrase(resp.status),
		"bytes", ex.out.bytes,
		"duration", s.now().Sub(ex.start),
	)
}
