package run

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// ArtifactsDir is the subdirectory of an exported run holding its artifacts.
const ArtifactsDir = "artifacts"

// LocalPath returns the filesystem path behind an artifact URI. It reports
// false for URIs served by a remote artifact store.
func LocalPath(uri string) (string, bool) {
	switch {
	case strings.HasPrefix(uri, "file://"):
		return strings.TrimPrefix(uri, "file://"), true
	case strings.HasPrefix(uri, "/"):
		return uri, true
	default:
		return "", false
	}
}

// copyArtifacts copies the tree at src into dst and returns the number of
// bytes copied. A missing src copies nothing.
func copyArtifacts(src, dst string) (int64, error) {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("checking artifacts at %s: %w", src, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("artifact root %s is not a directory", src)
	}

	size, err := treeSize(src)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
		return 0, fmt.Errorf("copying artifacts from %s: %w", src, err)
	}

	slog.Debug("copied artifacts", "from", src, "to", dst, "size", humanize.Bytes(uint64(size)))
	return size, nil
}

func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sizing artifacts at %s: %w", root, err)
	}
	return total, nil
}
