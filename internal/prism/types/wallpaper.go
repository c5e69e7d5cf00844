package types

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Slot is one of the two wallpaper positions. The numeric codes match the
// platform wallpaper flags and double as the collection row id.
type Slot int

const (
	SlotSystem Slot = 1
	SlotLock   Slot = 2
)

// NoWallpaperID is reported when the platform has no wallpaper for a slot or
// resolution failed.
const NoWallpaperID = -1

var ErrInvalidSlot = errors.New("invalid wallpaper slot")

// Slots lists the collection rows in the order they are returned.
var Slots = [...]Slot{SlotSystem, SlotLock}

func (s Slot) Valid() bool {
	return s == SlotSystem || s == SlotLock
}

func (s Slot) String() string {
	switch s {
	case SlotSystem:
		return "system"
	case SlotLock:
		return "lock"
	default:
		return "slot(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseSlot accepts a slot code ("1", "2") or name ("system", "home", "lock").
// Anything else is rejected rather than coerced.
func ParseSlot(v string) (Slot, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "system", "home":
		return SlotSystem, nil
	case "lock":
		return SlotLock, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || !Slot(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, v)
	}
	return Slot(n), nil
}

// ResolvedWallpaper is computed fresh on every resolution and never persisted.
// Content is nil unless ID is valid or a fallback image was materialized; the
// receiver owns the handle and must Close it.
type ResolvedWallpaper struct {
	Slot    Slot
	ID      int
	Content *os.File
}

func (w ResolvedWallpaper) HasContent() bool { return w.Content != nil }

func (w ResolvedWallpaper) Close() error {
	if w.Content == nil {
		return nil
	}
	return w.Content.Close()
}

// Wallpapers is the pair returned by a successful ResolveAll.
type Wallpapers struct {
	Lock ResolvedWallpaper
	Home ResolvedWallpaper
}

func (w Wallpapers) Close() error {
	return errors.Join(w.Lock.Close(), w.Home.Close())
}

// WallpaperRow is one row of the collection endpoint.
type WallpaperRow struct {
	RowID int     `json:"_id"`
	Type  string  `json:"type"`
	Key   int     `json:"key"`
	URI   *string `json:"uri"`
}

// WallpapersModel is the app's own view of the current wallpapers.
type WallpapersModel struct {
	LastFetched time.Time `json:"last_fetched"`
	Lock        *string   `json:"lock"`
	System      *string   `json:"system"`
}
