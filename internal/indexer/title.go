package indexer

import (
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/pkg/utils"
)

const untitled = "Untitled"

// TitleFromFilename drops the directory and the last extension of filename and caps the
// result at maxLen characters. An empty result becomes "Untitled".
func TitleFromFilename(filename string, maxLen int) string {
	name := strings.TrimSpace(filepath.Base(strings.ReplaceAll(filename, "\\", "/")))
	if name == "." || name == "/" {
		name = ""
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(utils.Clip(name, maxLen))
	if name == "" {
		return untitled
	}
	return name
}
