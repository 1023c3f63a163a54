//go:build !unix

package pathcheck

import (
	"io/fs"
	"path/filepath"
	"strings"
)

func isExecutable(path string, info fs.FileInfo) bool {
	if info.Mode().Perm()&0o111 != 0 {
		return true
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".exe", ".bat", ".cmd", ".com":
		return true
	default:
		return false
	}
}
