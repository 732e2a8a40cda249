package site

import (
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/iedon/meta-fileserver/fsutil"
	"github.com/iedon/meta-fileserver/renderer"
)

const (
	listingOpening  = `<hr /><a %s>Up one level</a><br /><br /><table><tr><th>Name</th><th>Size</th><th>Date Modified</th></tr>`
	listingRow      = `<tr id="row-%d"><td><a class="reflink" href="#row-%d">#</a>&nbsp;&nbsp;<img class="icon" src="%s" />&nbsp;&nbsp;<a href="%s">%s</a></td><td>%s</td><td><time datetime="%s">%s</time></td></tr>`
	listingError    = `<p class="error">Failed reading directory!</p>`
	listingTableEnd = `</table>`
	listingClosing  = `<br /><a href="#">Back to top</a><hr />`

	folderIcon = "icons/places/folder.svg"
	readmeName = "README.md"
)

// MarkdownRenderer renders README sources below a listing.
type MarkdownRenderer interface {
	Render(src []byte) (*renderer.RenderResult, error)
}

// DirectoryListing produces the HTML table for one directory. It holds no
// state besides its configuration, so every call to Produce re-reads the
// directory.
type DirectoryListing struct {
	Root       string
	MetaDir    string
	ShowHidden bool
	Dir        string
	Logger     *slog.Logger
	// Readme, when set, renders a README.md found in Dir after the table.
	Readme MarkdownRenderer
}

// Produce renders the listing fragment. Enumeration failures are reported
// inline; rows built before the failure are kept.
func (l *DirectoryListing) Produce() (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, listingOpening, parentLinkAttrs(l.Root, l.Dir, filepath.Dir(l.Dir)))

	entries, err := os.ReadDir(l.Dir)
	row := 0
	for _, entry := range entries {
		name := entry.Name()
		if fsutil.IsHidden(name) && !l.ShowHidden {
			continue
		}
		line, ok := l.row(row, entry)
		if !ok {
			continue
		}
		b.WriteString(line)
		row++
	}
	if err != nil {
		b.WriteString(listingError)
		l.logger().Error("failed reading directory", "dir", l.Dir, "err", err)
	}

	b.WriteString(listingTableEnd)
	if l.Readme != nil {
		b.WriteString(l.readme())
	}
	b.WriteString(listingClosing)
	return b.String(), nil
}

func (l *DirectoryListing) row(id int, entry fs.DirEntry) (string, bool) {
	full := filepath.Join(l.Dir, entry.Name())

	// Stat follows symlinks so a link to a directory lists as a directory.
	info, err := os.Stat(full)
	if err != nil {
		if info, err = entry.Info(); err != nil {
			l.logger().Debug("skipping vanished entry", "path", full, "err", err)
			return "", false
		}
	}

	var icon, size string
	if info.IsDir() {
		icon = folderIcon
		if n, err := fsutil.CountEntries(full); err == nil {
			size = formatItems(n)
		} else {
			size = "-"
			l.logger().Debug("failed counting entries", "path", full, "err", err)
		}
	} else {
		icon = "icons/mimetypes/" + strings.ReplaceAll(fsutil.MediaType(full), "/", "-") + ".svg"
		size = formatSize(info.Size())
	}

	iconSrc := rootHref(fsutil.RelSlash(l.Root, l.MetaDir) + "/img/" + icon)
	href := rootHref(fsutil.RelSlash(l.Root, full))
	name := html.EscapeString(norm.NFC.String(entry.Name()))
	modified := info.ModTime().Format(time.RFC3339)

	return fmt.Sprintf(listingRow, id, id, iconSrc, href, name, size, modified, modified), true
}

func (l *DirectoryListing) readme() string {
	path := filepath.Join(l.Dir, readmeName)
	src, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger().Warn("failed reading readme", "path", path, "err", err)
		}
		return ""
	}
	res, err := l.Readme.Render(src)
	if err != nil {
		l.logger().Warn("failed rendering readme", "path", path, "err", err)
		return ""
	}
	return `<article class="readme">` + string(res.HTML) + `</article>`
}

func (l *DirectoryListing) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
