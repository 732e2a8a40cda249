package site

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// formatSize renders a file length: exact bytes below 1 KiB, IEC units above.
func formatSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d Bytes", n)
	}
	return humanize.IBytes(uint64(n))
}

func formatItems(n int) string {
	return fmt.Sprintf("%d Items", n)
}
