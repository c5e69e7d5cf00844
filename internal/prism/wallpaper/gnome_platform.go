package wallpaper

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/prismwall/prismd/internal/prism/types"
)

const (
	gnomeBackgroundSchema  = "org.gnome.desktop.background"
	gnomeScreensaverSchema = "org.gnome.desktop.screensaver"
)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// GnomePlatform reads picture-uri from gsettings. The home slot is the
// desktop background and the lock slot is the screensaver picture.
type GnomePlatform struct {
	DefaultPath string
	Run         CommandRunner
}

func NewGnomePlatform(defaultPath string) *GnomePlatform {
	return &GnomePlatform{DefaultPath: defaultPath, Run: execRunner}
}

func (p *GnomePlatform) pictureURI(ctx context.Context, slot types.Slot) (string, error) {
	schema := gnomeBackgroundSchema
	if slot == types.SlotLock {
		schema = gnomeScreensaverSchema
	}
	out, err := p.Run(ctx, "gsettings", "get", schema, "picture-uri")
	if err != nil {
		return "", fmt.Errorf("gsettings get %s picture-uri: %w", schema, err)
	}
	return strings.Trim(strings.TrimSpace(string(out)), "'\""), nil
}

func (p *GnomePlatform) WallpaperID(ctx context.Context, slot types.Slot) (int, error) {
	uri, err := p.pictureURI(ctx, slot)
	if err != nil {
		return types.NoWallpaperID, err
	}
	if uri == "" {
		return types.NoWallpaperID, nil
	}
	if path, ok := filePath(uri); ok {
		if id, err := fileID(path); err == nil {
			return id, nil
		}
	}
	// Not file backed (resource:// or a missing file): still a valid wallpaper.
	return stableID(uri), nil
}

func (p *GnomePlatform) OpenWallpaperFile(ctx context.Context, slot types.Slot) (*os.File, error) {
	uri, err := p.pictureURI(ctx, slot)
	if err != nil {
		return nil, err
	}
	path, ok := filePath(uri)
	if !ok {
		return nil, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return f, err
}

func (p *GnomePlatform) BuiltinDefault(context.Context) (image.Image, error) {
	return loadDefault(p.DefaultPath)
}

// WatchPaths returns the user's dconf database, which is rewritten on every
// gsettings change.
func (p *GnomePlatform) WatchPaths() []string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(dir, "dconf", "user")}
}

func filePath(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", false
	}
	return u.Path, true
}
