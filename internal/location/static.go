package location

import (
	"context"
	"time"

	"goodzwork-checkin/models"
)

// StaticLocator reports a fixed kiosk position.
type StaticLocator struct {
	pos    models.GeoPosition
	hasFix bool
	now    func() time.Time
}

func NewStaticLocator(cfg models.LocationConfig) *StaticLocator {
	return &StaticLocator{
		pos: models.GeoPosition{
			Latitude:  cfg.Latitude,
			Longitude: cfg.Longitude,
			Accuracy:  cfg.Accuracy,
		},
		hasFix: cfg.HasFix,
		now:    time.Now,
	}
}

func (l *StaticLocator) Locate(ctx context.Context) (models.GeoPosition, error) {
	if err := ctx.Err(); err != nil {
		return models.GeoPosition{}, err
	}
	if !l.hasFix {
		return models.GeoPosition{}, ErrNoGeoSupport
	}
	pos := l.pos
	pos.Timestamp = l.now()
	return pos, nil
}
