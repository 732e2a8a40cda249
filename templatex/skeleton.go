package templatex

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DefaultSkeleton is the built-in page layout used when the meta directory
// has no templates/default.template.html. It binds meta, theme, title,
// header, body and footer.
//
//go:embed default.template.html
var DefaultSkeleton string

// LoadSkeleton reads the page skeleton at path. A missing file yields
// DefaultSkeleton with fromDisk set to false; any other error is returned.
func LoadSkeleton(path string) (source string, fromDisk bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultSkeleton, false, nil
		}
		return "", false, fmt.Errorf("read skeleton %s: %w", path, err)
	}
	return string(data), true, nil
}
