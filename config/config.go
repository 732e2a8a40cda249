package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Recognised configuration keys.
const (
	KeyRoot                 = "root"
	KeyMetaRoot             = "meta-root"
	KeyTheme                = "theme"
	KeyPort                 = "port"
	KeyListen               = "listen"
	KeyShowHidden           = "show-hidden"
	KeyLogLevel             = "log-level"
	KeyReadTimeout          = "read-timeout"
	KeyWriteTimeout         = "write-timeout"
	KeyMaxWorkers           = "max-workers"
	KeyMaxCachedDirectories = "max-cached-directories"
	KeyMinify               = "minify"
	KeyRenderReadme         = "render-readme"
)

// EnvPrefix is prepended to upper-cased keys when reading environment overrides,
// e.g. FILESERVER_SHOW_HIDDEN.
const EnvPrefix = "FILESERVER"

var (
	ErrInvalidPort   = errors.New("invalid port")
	ErrEscapesParent = errors.New("path escapes its parent directory")
)

// Config holds the immutable server settings.
type Config struct {
	Root                 string
	MetaRoot             string
	Theme                string
	Port                 uint16
	Listen               string
	ShowHidden           bool
	LogLevel             string
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	MaxWorkers           int
	MaxCachedDirectories int
	Minify               bool
	RenderReadme         bool
}

// Load reads a key=value file (if path is non-empty), applies environment
// overrides, then the explicit overrides, and finally the defaults.
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		values, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, fmt.Errorf("merge config: %w", err)
		}
	}
	for key, value := range overrides {
		v.Set(strings.ToLower(key), value)
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyRoot, "/")
	v.SetDefault(KeyMetaRoot, ".meta")
	v.SetDefault(KeyTheme, "css/theme.css")
	v.SetDefault(KeyPort, 80)
	v.SetDefault(KeyListen, "")
	v.SetDefault(KeyShowHidden, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyReadTimeout, 10*time.Second)
	v.SetDefault(KeyWriteTimeout, 60*time.Second)
	v.SetDefault(KeyMaxWorkers, 256)
	v.SetDefault(KeyMaxCachedDirectories, 0)
	v.SetDefault(KeyMinify, false)
	v.SetDefault(KeyRenderReadme, false)
}

// readFile parses the line-oriented key=value format. Blank lines and lines
// starting with # are skipped. Keys are folded to lower case.
func readFile(path string) (map[string]any, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	values := make(map[string]any)
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == '=' || r == ' ' || r == '\t' || r == '\f'
		})
		switch len(fields) {
		case 0:
			return nil, fmt.Errorf("config line %d: missing key", lineNo)
		case 1:
			return nil, fmt.Errorf("config line %d: missing value for %q", lineNo, fields[0])
		}
		values[strings.ToLower(fields[0])] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return values, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	root, err := filepath.Abs(strings.TrimSpace(v.GetString(KeyRoot)))
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	metaRoot, err := relativeTo(root, v.GetString(KeyMetaRoot))
	if err != nil {
		return nil, fmt.Errorf("meta-root: %w", err)
	}
	theme, err := relativeTo(filepath.Join(root, metaRoot), v.GetString(KeyTheme))
	if err != nil {
		return nil, fmt.Errorf("theme: %w", err)
	}

	port, err := parsePort(v.GetString(KeyPort))
	if err != nil {
		return nil, err
	}

	listen := strings.TrimSpace(v.GetString(KeyListen))
	if listen == "" {
		listen = ":" + strconv.Itoa(int(port))
	}

	return &Config{
		Root:                 root,
		MetaRoot:             metaRoot,
		Theme:                theme,
		Port:                 port,
		Listen:               listen,
		ShowHidden:           v.GetBool(KeyShowHidden),
		LogLevel:             strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		ReadTimeout:          v.GetDuration(KeyReadTimeout),
		WriteTimeout:         v.GetDuration(KeyWriteTimeout),
		MaxWorkers:           v.GetInt(KeyMaxWorkers),
		MaxCachedDirectories: v.GetInt(KeyMaxCachedDirectories),
		Minify:               v.GetBool(KeyMinify),
		RenderReadme:         v.GetBool(KeyRenderReadme),
	}, nil
}

func (c *Config) validate() error {
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read-timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write-timeout must be positive")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max-workers must be positive")
	}
	if c.MaxCachedDirectories < 0 {
		return fmt.Errorf("max-cached-directories must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log-level %q", c.LogLevel)
	}
	return nil
}

func parsePort(raw string) (uint16, error) {
	port, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidPort, raw, err)
	}
	if port == 0 {
		return 80, nil
	}
	return uint16(port), nil
}

// relativeTo joins child onto base (even when child is absolute) and returns
// the cleaned path relative to base.
func relativeTo(base, child string) (string, error) {
	joined := filepath.Join(base, filepath.FromSlash(strings.TrimSpace(child)))
	rel, err := filepath.Rel(base, joined)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrEscapesParent, child)
	}
	return rel, nil
}

// MetaDir returns the absolute path of the meta directory.
func (c *Config) MetaDir() string {
	return filepath.Join(c.Root, c.MetaRoot)
}

// SkeletonPath returns the absolute path of the default page skeleton.
func (c *Config) SkeletonPath() string {
	return filepath.Join(c.MetaDir(), "templates", "default.template.html")
}

// String renders the configuration in the file format accepted by Load.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s\n", KeyRoot, c.Root)
	fmt.Fprintf(&b, "%s=%s\n", KeyMetaRoot, c.MetaRoot)
	fmt.Fprintf(&b, "%s=%s\n", KeyTheme, c.Theme)
	fmt.Fprintf(&b, "%s=%d\n", KeyPort, c.Port)
	fmt.Fprintf(&b, "%s=%s\n", KeyListen, c.Listen)
	fmt.Fprintf(&b, "%s=%t\n", KeyShowHidden, c.ShowHidden)
	fmt.Fprintf(&b, "%s=%s\n", KeyLogLevel, c.LogLevel)
	fmt.Fprintf(&b, "%s=%s\n", KeyReadTimeout, c.ReadTimeout)
	fmt.Fprintf(&b, "%s=%s\n", KeyWriteTimeout, c.WriteTimeout)
	fmt.Fprintf(&b, "%s=%d\n", KeyMaxWorkers, c.MaxWorkers)
	fmt.Fprintf(&b, "%s=%d\n", KeyMaxCachedDirectories, c.MaxCachedDirectories)
	fmt.Fprintf(&b, "%s=%t\n", KeyMinify, c.Minify)
	fmt.Fprintf(&b, "%s=%t", KeyRenderReadme, c.RenderReadme)
	return b.String()
}
