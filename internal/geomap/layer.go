package geomap

import (
	"context"
	"errors"

	"dashguard/internal/domain/models"
)

// Common errors
var (
	ErrDisposed           = errors.New("map controller disposed")
	ErrSurfaceUnavailable = errors.New("map surface unavailable")
	ErrInvalidBasemap     = errors.New("invalid basemap")
)

// Surface is the rendering target a Controller drives. Attach builds the base
// tile layer and an empty marker layer; Release tears down whatever the surface
// holds and leaves it attachable again.
type Surface interface {
	Attach(ctx context.Context, tiles models.TileLayer, viewport models.Viewport) (MarkerLayer, error)
	SetBasemap(tiles models.TileLayer) error
	SetViewport(viewport models.Viewport) error
	Release() error
}

// MarkerLayer is the mutable set of markers drawn on a Surface
type MarkerLayer interface {
	AddMarker(m models.Marker) error
	RemoveMarker(threatID string) error
	RestyleMarker(m models.Marker) error
}
