package app

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperifyio/goradar/internal/record"
)

// DefaultExportPath returns a timestamped file name under dir for an export,
// such as exports/goradar-courses-20240301-101500.xlsx.
func DefaultExportPath(dir, format string, kind record.Kind, now time.Time) string {
	root := strings.TrimSpace(dir)
	if root == "" {
		root = "exports"
	}
	name := "goradar"
	if kind != "" && format != "pdf" {
		name += "-" + string(kind)
	}
	name += "-" + now.UTC().Format("20060102-150405") + "." + strings.ToLower(format)
	return filepath.Join(root, name)
}
