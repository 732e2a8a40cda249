package site

import (
	"html"
	"net/url"
	"strings"

	"github.com/iedon/meta-fileserver/fsutil"
)

// rootHref turns a root-relative slash path into an escaped href that starts with "/".
func rootHref(rel string) string {
	u := url.URL{Path: "/" + strings.TrimPrefix(rel, "/")}
	return html.EscapeString(u.EscapedPath())
}

// indexTitle is the "Index of /rel" caption shared by the title and header.
func indexTitle(root, dir string) string {
	return "Index of /" + fsutil.RelSlash(root, dir)
}

// parentLinkAttrs returns the attributes of the "Up one level" anchor.
func parentLinkAttrs(root, dir, parent string) string {
	if fsutil.RelSlash(root, dir) == "" {
		return `class="disabled" href="#"`
	}
	return `href="` + rootHref(fsutil.RelSlash(root, parent)) + `"`
}
