package wallpaper

import (
	"context"
	"image"
	"os"

	"github.com/prismwall/prismd/internal/prism/types"
)

// FilePlatform reads wallpapers from fixed paths, for compositors (sway,
// hyprland) whose wallpaper tool is pointed at a file prismd knows about.
type FilePlatform struct {
	LockPath    string
	HomePath    string
	DefaultPath string
}

func (p *FilePlatform) path(slot types.Slot) string {
	if slot == types.SlotLock {
		return p.LockPath
	}
	return p.HomePath
}

func (p *FilePlatform) WallpaperID(_ context.Context, slot types.Slot) (int, error) {
	path := p.path(slot)
	if path == "" {
		return types.NoWallpaperID, nil
	}
	return fileID(path)
}

func (p *FilePlatform) OpenWallpaperFile(_ context.Context, slot types.Slot) (*os.File, error) {
	path := p.path(slot)
	if path == "" {
		return nil, nil
	}
	return os.Open(path)
}

func (p *FilePlatform) BuiltinDefault(context.Context) (image.Image, error) {
	return loadDefault(p.DefaultPath)
}

func (p *FilePlatform) WatchPaths() []string {
	var out []string
	for _, path := range []string{p.HomePath, p.LockPath} {
		if path != "" {
			out = append(out, path)
		}
	}
	return out
}
