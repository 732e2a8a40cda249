package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/iedon/meta-fileserver/config"
)

// Pages renders the generated pages served alongside plain files.
type Pages interface {
	RenderError(status int, reason string) (string, error)
	RenderDirectory(dir string) (string, error)
}

// Server accepts connections and answers one request per connection.
type Server struct {
	cfg          *config.Config
	pages        Pages
	logger       *slog.Logger
	errlog       *slog.Logger
	serverHeader string
	workers      *semaphore.Weighted
	wg           sync.WaitGroup
	now          func() time.Time
}

// New constructs a server instance.
func New(cfg *config.Config, pages Pages, logger *slog.Logger, serverHeader string) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Server{
		cfg:          cfg,
		pages:        pages,
		logger:       logger,
		errlog:       slog.New(slog.NewTextHandler(os.Stderr, nil)),
		serverHeader: strings.TrimSpace(serverHeader),
		workers:      semaphore.NewWeighted(int64(workers)),
		now:          time.Now,
	}
}

// SetErrorLog replaces the logger that receives stack traces and internal
// failures. It must be called before Start or Serve.
func (s *Server) SetErrorLog(l *slog.Logger) {
	if l != nil {
		s.errlog = l
	}
}

// Start opens the configured listener and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := s.listen(s.cfg.Listen)
	if err != nil {
		return err
	}
	s.logger.Info("listening", "addr", listener.Addr().String(), "root", s.cfg.Root)
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then closes
// the listener and waits for in-flight requests. At most max-workers
// connections are handled at once.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = listener.Close()
	}()

	var tempDelay time.Duration
	for {
		if err := s.workers.Acquire(ctx, 1); err != nil {
			break
		}
		conn, err := listener.Accept()
		if err != nil {
			s.workers.Release(1)
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return fmt.Errorf("accept: %w", err)
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			s.logger.Warn("accept", "err", err, "retry", tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.workers.Release(1)
			s.handle(conn)
		}()
	}

	s.wg.Wait()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) listen(address string) (net.Listener, error) {
	if listener, ok, err := s.systemdListener(); err != nil {
		return nil, err
	} else if ok {
		return listener, nil
	}
	if after, ok := strings.CutPrefix(address, "unix:"); ok {
		path := after
		_ = os.Remove(path)
		return net.Listen("unix", path)
	}
	return net.Listen("tcp", address)
}

func (s *Server) systemdListener() (net.Listener, bool, error) {
	pidEnv := strings.TrimSpace(os.Getenv("LISTEN_PID"))
	if pidEnv == "" {
		return nil, false, nil
	}
	pid, err := strconv.Atoi(pidEnv)
	if err != nil || pid != os.Getpid() {
		return nil, false, nil
	}
	fdsEnv := strings.TrimSpace(os.Getenv("LISTEN_FDS"))
	if fdsEnv == "" {
		return nil, false, nil
	}
	fds, err := strconv.Atoi(fdsEnv)
	if err != nil {
		return nil, false, fmt.Errorf("systemd listener: invalid LISTEN_FDS: %w", err)
	}
	if fds <= 0 {
		return nil, false, nil
	}
	const sdListenFdsStart = 3
	file := os.NewFile(uintptr(sdListenFdsStart), fmt.Sprintf("systemd-fd-%d", sdListenFdsStart))
	if file == nil {
		return nil, false, fmt.Errorf("systemd listener: failed to access fd")
	}
	listener, err := net.FileListener(file)
	_ = file.Close()
	if err != nil {
		return nil, false, fmt.Errorf("systemd listener: %w", err)
	}
	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")
	return listener, true, nil
}
