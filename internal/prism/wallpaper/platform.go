// Package wallpaper resolves the lock and home wallpapers from the desktop
// and exposes them as read-only file handles.
package wallpaper

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"

	"github.com/prismwall/prismd/internal/prism/types"
)

// Platform is the desktop's wallpaper source.
type Platform interface {
	// WallpaperID returns a positive id for the current wallpaper of slot, or
	// types.NoWallpaperID when none is set.
	WallpaperID(ctx context.Context, slot types.Slot) (int, error)
	// OpenWallpaperFile returns (nil, nil) when the wallpaper is not file backed.
	OpenWallpaperFile(ctx context.Context, slot types.Slot) (*os.File, error)
	// BuiltinDefault returns the image the desktop shows when nothing is configured.
	BuiltinDefault(ctx context.Context) (image.Image, error)
	// WatchPaths lists files whose modification means the wallpaper changed.
	WatchPaths() []string
}

// generatedDefault stands in for a builtin image when none is configured.
func generatedDefault() image.Image {
	return imaging.New(1920, 1080, color.NRGBA{R: 0x1d, G: 0x22, B: 0x2b, A: 0xff})
}

func loadDefault(path string) (image.Image, error) {
	if path == "" {
		return generatedDefault(), nil
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open default wallpaper %s: %w", path, err)
	}
	return img, nil
}

// stableID maps a wallpaper identity to a positive 31-bit id that changes
// whenever the underlying file does.
func stableID(parts ...string) int {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	id := int(h.Sum32() & 0x7fffffff)
	if id == 0 {
		id = 1
	}
	return id
}

func fileID(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.NoWallpaperID, err
	}
	return stableID(path, fmt.Sprint(info.Size()), fmt.Sprint(info.ModTime().UnixNano())), nil
}
