// Package static embeds static files into the binary and copies them to the
// filesystem
package static

import (
	"embed"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"

	"github.com/lifetrack/lifetrack/internal/osutil"
)

const (
	filesDir = "files"
	iconName = "icon.svg"
)

//go:embed files/*
var embeddedFiles embed.FS

// Install copies the embedded files into the data directory of app. Files
// that already exist are left alone, so users may replace them.
func Install(app string) error {
	return fs.WalkDir(
		embeddedFiles,
		filesDir,
		func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				return nil
			}

			stripped := strings.TrimPrefix(path, filesDir+"/")

			destPath, err := xdg.DataFile(filepath.Join(app, stripped))
			if err != nil {
				return err
			}

			_, err = os.Stat(destPath)
			if !errors.Is(err, os.ErrNotExist) {
				return err
			}

			b, err := embeddedFiles.ReadFile(path)
			if err != nil {
				return err
			}

			err = os.MkdirAll(filepath.Dir(destPath), osutil.DirPermission)
			if err != nil {
				return err
			}

			return os.WriteFile(destPath, b, osutil.FilePermission)
		},
	)
}

// IconPath returns the installed notification icon, or an empty string when
// it cannot be found.
func IconPath(app string) string {
	p, _ := xdg.SearchDataFile(filepath.Join(app, iconName))
	return p
}
