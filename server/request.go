package server

import (
	"errors"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/iedon/meta-fileserver/fsutil"
)

// maxRequestSize bounds the single read that captures the request head.
const maxRequestSize = 8192

type method uint8

const (
	methodUnknown method = iota
	methodGet
	methodHead
)

func (m method) String() string {
	switch m {
	case methodGet:
		return "GET"
	case methodHead:
		return "HEAD"
	default:
		return "UNKNOWN"
	}
}

// sendsBody reports whether a response to m carries the body bytes.
func (m method) sendsBody() bool {
	return m == methodGet
}

func parseMethod(token string) method {
	switch {
	case strings.EqualFold(token, "GET"):
		return methodGet
	case strings.EqualFold(token, "HEAD"):
		return methodHead
	default:
		return methodUnknown
	}
}

var (
	errMalformedRequest = errors.New("malformed request line")
	errBadTarget        = errors.New("undecodable request target")
	errOutsideRoot      = errors.New("request target escapes root")
)

type request struct {
	method method
	target string
}

// parseRequest extracts the method and target from the first line of raw.
// Invalid UTF-8 is replaced rather than rejected.
func parseRequest(raw []byte) (request, error) {
	text := strings.ToValidUTF8(string(raw), "\uFFFD")
	line, _, _ := strings.Cut(text, "\r\n")
	fields := strings.Fields(line)
	if len(fields) < 2 {
		req := request{method: methodUnknown}
		if len(fields) == 1 {
			req.method = parseMethod(fields[0])
		}
		return req, errMalformedRequest
	}
	return request{method: parseMethod(fields[0]), target: fields[1]}, nil
}

// resolveTarget maps a request target onto the filesystem under root. The
// query and fragment are dropped and the path is cleaned before joining, so
// the result never leaves root.
func resolveTarget(root, target string) (string, error) {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	decoded, err := url.PathUnescape(target)
	if err != nil || strings.ContainsRune(decoded, 0) {
		return "", errBadTarget
	}
	clean := path.Clean("/" + decoded)
	full := filepath.Join(root, filepath.FromSlash(clean))
	if !fsutil.IsWithin(root, full) {
		return "", errOutsideRoot
	}
	return full, nil
}
