package site

import (
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/iedon/meta-fileserver/config"
	"github.com/iedon/meta-fileserver/fsutil"
	"github.com/iedon/meta-fileserver/renderer"
	"github.com/iedon/meta-fileserver/templatex"
)

// Service builds and caches the generated pages: one error page per status
// code and one index page per directory.
type Service struct {
	cfg      *config.Config
	logger   *slog.Logger
	renderer *renderer.Renderer
	footer   string

	fallbackOnce   sync.Once
	errorPages     *templatex.PageCache[int]
	directoryPages *templatex.PageCache[string]
}

// NewService constructs a Service. signature is shown in every page footer.
func NewService(cfg *config.Config, logger *slog.Logger, signature string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:            cfg,
		logger:         logger,
		renderer:       renderer.New(),
		footer:         fmt.Sprintf("<p>Generated by %s</p>", html.EscapeString(signature)),
		errorPages:     templatex.NewPageCache[int](0),
		directoryPages: templatex.NewPageCache[string](cfg.MaxCachedDirectories),
	}
}

// ErrorPage returns the cached template for status, building it on first
// use. reason is bound only when the page is built; later calls reuse the
// page unmodified.
func (s *Service) ErrorPage(status int, reason string) (*templatex.Template, error) {
	return s.errorPages.GetOrCreate(status, func() (*templatex.Template, error) {
		tpl, err := s.newPage()
		if err != nil {
			return nil, err
		}
		tpl.Set("title", reason)
		tpl.Set("header", fmt.Sprintf("<h1>Error %d</h1>", status))
		tpl.Set("body", fmt.Sprintf("<p>%s</p>", reason))
		tpl.Set("footer", s.footer)
		s.logger.Debug("built error page", "status", status)
		return tpl, nil
	})
}

// DirectoryPage returns the cached index template for dir, an absolute path
// under the served root.
func (s *Service) DirectoryPage(dir string) (*templatex.Template, error) {
	dir = filepath.Clean(dir)
	return s.directoryPages.GetOrCreate(dir, func() (*templatex.Template, error) {
		if !fsutil.IsWithin(s.cfg.Root, dir) {
			return nil, fmt.Errorf("%s: %w", dir, ErrOutsideRoot)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
		}

		tpl, err := s.newPage()
		if err != nil {
			return nil, err
		}
		listing := &DirectoryListing{
			Root:       s.cfg.Root,
			MetaDir:    s.cfg.MetaDir(),
			ShowHidden: s.cfg.ShowHidden,
			Dir:        dir,
			Logger:     s.logger,
		}
		if s.cfg.RenderReadme {
			listing.Readme = s.renderer
		}
		tpl.SetLazy("title", func() (string, error) {
			return html.EscapeString(indexTitle(s.cfg.Root, dir)), nil
		})
		tpl.SetLazy("header", func() (string, error) {
			return "<h1>" + html.EscapeString(indexTitle(s.cfg.Root, dir)) + "</h1>", nil
		})
		tpl.SetLazy("body", listing.Produce)
		tpl.Set("footer", s.footer)
		s.logger.Debug("built directory page", "dir", dir)
		return tpl, nil
	})
}

// RenderError renders the error page for status.
func (s *Service) RenderError(status int, reason string) (string, error) {
	tpl, err := s.ErrorPage(status, reason)
	if err != nil {
		return "", fmt.Errorf("error page %d: %w", status, err)
	}
	return tpl.Render()
}

// RenderDirectory renders the index page for dir.
func (s *Service) RenderDirectory(dir string) (string, error) {
	tpl, err := s.DirectoryPage(dir)
	if err != nil {
		return "", fmt.Errorf("directory page: %w", err)
	}
	return tpl.Render()
}

// CachedPages reports how many error and directory pages are cached.
func (s *Service) CachedPages() (errorPages, directoryPages int) {
	return s.errorPages.Len(), s.directoryPages.Len()
}

// newPage creates a template over the page skeleton with the meta and theme
// placeholders bound.
func (s *Service) newPage() (*templatex.Template, error) {
	path := s.cfg.SkeletonPath()
	source, fromDisk, err := templatex.LoadSkeleton(path)
	if err != nil {
		return nil, err
	}
	if !fromDisk {
		s.fallbackOnce.Do(func() {
			s.logger.Warn("page skeleton not found, using built-in default", "path", path)
		})
	}

	var opts []templatex.Option
	if s.cfg.Minify {
		opts = append(opts, templatex.WithFilter(renderer.MinifyHTML))
	}
	tpl := templatex.New(source, opts...)
	tpl.Set("meta", filepath.ToSlash(s.cfg.MetaRoot))
	tpl.Set("theme", filepath.ToSlash(s.cfg.Theme))
	return tpl, nil
}
