package wallpaper

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/prismwall/prismd/internal/lane"
	"github.com/prismwall/prismd/internal/prism/types"
)

// CacheFileName is the fallback image written under the cache dir.
const CacheFileName = "wallpaper_cache"

var errNoDefault = errors.New("platform has no builtin default wallpaper")

// Adapter resolves slots against a Platform. It owns the one-entry fallback
// cache used when the platform reports a wallpaper it cannot hand out as a
// file. The cache is never invalidated; clearing the cache dir is the only
// way to refresh it.
type Adapter struct {
	platform  Platform
	cachePath string
	lane      *lane.Lane
	logger    zerolog.Logger
}

func NewAdapter(p Platform, cacheDir string, l *lane.Lane, logger zerolog.Logger) *Adapter {
	return &Adapter{
		platform:  p,
		cachePath: filepath.Join(cacheDir, CacheFileName),
		lane:      l,
		logger:    logger,
	}
}

func (a *Adapter) CachePath() string { return a.cachePath }

// Resolve never fails on platform errors: they map to an empty result with
// types.NoWallpaperID. The only error is types.ErrInvalidSlot.
func (a *Adapter) Resolve(ctx context.Context, slot types.Slot) (res types.ResolvedWallpaper, err error) {
	if !slot.Valid() {
		return types.ResolvedWallpaper{}, fmt.Errorf("%w: %d", types.ErrInvalidSlot, int(slot))
	}

	empty := types.ResolvedWallpaper{Slot: slot, ID: types.NoWallpaperID}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Interface("panic", r).Stringer("slot", slot).Msg("platform resolution panicked")
			_ = res.Close()
			res, err = empty, nil
		}
	}()

	id, perr := a.platform.WallpaperID(ctx, slot)
	if perr != nil {
		a.logger.Debug().Err(perr).Stringer("slot", slot).Msg("wallpaper id unavailable")
		return empty, nil
	}

	f, perr := a.platform.OpenWallpaperFile(ctx, slot)
	if perr != nil {
		a.logger.Debug().Err(perr).Stringer("slot", slot).Msg("wallpaper file unavailable")
		return empty, nil
	}

	if f == nil && id > 0 {
		f, perr = a.fallback(ctx)
		if perr != nil {
			a.logger.Warn().Err(perr).Stringer("slot", slot).Msg("fallback wallpaper unavailable")
			f = nil
		}
	}

	return types.ResolvedWallpaper{Slot: slot, ID: id, Content: f}, nil
}

// fallback opens the cached default image, materializing it on first use.
// Concurrent first writers are serialized on the lane and the file is
// published with a rename so readers never see a partial image.
func (a *Adapter) fallback(ctx context.Context) (*os.File, error) {
	f, err := os.Open(a.cachePath)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := a.lane.Do(ctx, a.writeCache); err != nil {
		return nil, err
	}
	return os.Open(a.cachePath)
}

func (a *Adapter) writeCache(ctx context.Context) error {
	if _, err := os.Stat(a.cachePath); err == nil {
		return nil
	}

	img, err := a.platform.BuiltinDefault(ctx)
	if err != nil {
		return err
	}
	if img == nil {
		return errNoDefault
	}

	dir := filepath.Dir(a.cachePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+CacheFileName+"-*")
	if err != nil {
		return fmt.Errorf("create cache temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := imaging.Encode(tmp, img, imaging.PNG); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode fallback png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), a.cachePath); err != nil {
		return fmt.Errorf("publish cache file: %w", err)
	}

	a.logger.Info().Str("path", a.cachePath).Msg("fallback wallpaper cached")
	return nil
}
