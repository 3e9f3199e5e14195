package forecast

import (
	"crypto/md5"
	"encoding/binary"
	"strconv"

	"github.com/aqib-ilyas/conflictlens/internal/models"
)

// coordProvider returns a coordinate record for a grid id, or nil when it
// cannot answer.
type coordProvider func(gridID int64) *models.CoordinateRecord

// CoordinateResolver produces a coordinate for every grid id by walking an
// ordered provider chain: source data first, synthetic derivation last. The
// final provider always answers, so resolution cannot fail.
type CoordinateResolver struct {
	providers []coordProvider
}

// NewCoordinateResolver builds a resolver over a snapshot of source
// coordinates keyed by grid id.
func NewCoordinateResolver(source map[int64]models.CoordinateRecord) *CoordinateResolver {
	return &CoordinateResolver{
		providers: []coordProvider{
			sourceProvider(source),
			syntheticCoordProvider,
		},
	}
}

// Resolve returns the coordinate record for a grid id and whether it came
// from source data.
func (r *CoordinateResolver) Resolve(gridID int64) (models.CoordinateRecord, bool) {
	for i, p := range r.providers {
		if c := p(gridID); c != nil {
			return *c, i == 0
		}
	}
	// Unreachable: the synthetic provider always answers.
	lat, lon := SyntheticCoordinate(gridID)
	return models.CoordinateRecord{GridID: gridID, Latitude: lat, Longitude: lon}, false
}

func sourceProvider(source map[int64]models.CoordinateRecord) coordProvider {
	return func(gridID int64) *models.CoordinateRecord {
		if c, ok := source[gridID]; ok {
			return &c
		}
		return nil
	}
}

func syntheticCoordProvider(gridID int64) *models.CoordinateRecord {
	lat, lon := SyntheticCoordinate(gridID)
	return &models.CoordinateRecord{GridID: gridID, Latitude: lat, Longitude: lon}
}

// SyntheticCoordinate derives a stable pseudo-location for a grid cell with
// no source coordinate. The decimal grid id is hashed with md5 and the first
// 32 bits (big-endian) drive the mapping, giving latitude in [-60, 70) and
// longitude in [-180, 180). The result is identical across runs for the same
// grid id.
func SyntheticCoordinate(gridID int64) (lat, lon float64) {
	sum := md5.Sum([]byte(strconv.FormatInt(gridID, 10)))
	h := binary.BigEndian.Uint32(sum[:4])

	lat = float64(h%13000)/100.0 - 60.0
	lon = float64((h/13000)%36000)/100.0 - 180.0
	return lat, lon
}
