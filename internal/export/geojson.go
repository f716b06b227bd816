package export

import (
	"context"
	"encoding/json"
	"fmt"

	"altitude-recorder/internal/logger"
	"altitude-recorder/internal/models"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Source supplies stored points in timestamp order.
type Source interface {
	FetchAll(ctx context.Context) ([]models.TrackPoint, error)
}

type Exporter struct {
	source Source
}

func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// BuildFeatureCollection maps every stored point to a Point feature with
// [lon, lat, alt] coordinates. A failed fetch is logged and yields an
// empty collection.
func (e *Exporter) BuildFeatureCollection(ctx context.Context) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}

	pts, err := e.source.FetchAll(ctx)
	if err != nil {
		logger.Error(err, "fetch points for export")
		return fc
	}

	for _, pt := range pts {
		fc.Features = append(fc.Features, Feature(pt))
	}
	return fc
}

// Feature converts one stored point.
func Feature(pt models.TrackPoint) *geojson.Feature {
	return &geojson.Feature{
		Geometry: geom.NewPointFlat(geom.XYZ, []float64{pt.Longitude, pt.Latitude, pt.Altitude}),
		Properties: map[string]interface{}{
			"timestamp": int64(pt.Time),
			"altitude":  pt.Altitude,
		},
	}
}

// Export builds and serializes the collection.
func (e *Exporter) Export(ctx context.Context) ([]byte, error) {
	fc := e.BuildFeatureCollection(ctx)
	b, err := json.Marshal(fc)
	if err != nil {
		logger.Error(err, "serialize feature collection", "features", len(fc.Features))
		return nil, fmt.Errorf("serialize feature collection: %w", err)
	}
	return b, nil
}
