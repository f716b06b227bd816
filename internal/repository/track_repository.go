package repository

import (
	"context"
	"fmt"
	"time"

	"altitude-recorder/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TrackRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTrackRepository returns a gorm-backed store. now may be nil.
func NewTrackRepository(db *gorm.DB, now func() time.Time) *TrackRepository {
	if now == nil {
		now = time.Now
	}
	return &TrackRepository{db: db, now: now}
}

// Save inserts a new point stamped with a fresh id and the current time.
func (r *TrackRepository) Save(ctx context.Context, lat, lon, alt float64) (models.TrackPoint, error) {
	pt := newPoint(r.now(), lat, lon, alt)
	if err := r.db.WithContext(ctx).Create(&pt).Error; err != nil {
		return models.TrackPoint{}, fmt.Errorf("insert track point: %w", err)
	}
	return pt, nil
}

// FetchAll returns every point ordered by time, oldest first.
func (r *TrackRepository) FetchAll(ctx context.Context) ([]models.TrackPoint, error) {
	var pts []models.TrackPoint
	err := r.db.WithContext(ctx).Order("time ASC").Find(&pts).Error
	if err != nil {
		return nil, fmt.Errorf("fetch track points: %w", err)
	}
	return pts, nil
}

func (r *TrackRepository) DeleteAll(ctx context.Context) error {
	err := r.db.WithContext(ctx).Where("1 = 1").Delete(&models.TrackPoint{}).Error
	if err != nil {
		return fmt.Errorf("delete track points: %w", err)
	}
	return nil
}

func (r *TrackRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.TrackPoint{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count track points: %w", err)
	}
	return n, nil
}

func newPoint(now time.Time, lat, lon, alt float64) models.TrackPoint {
	return models.TrackPoint{
		ID:        uuid.New().String(),
		Latitude:  lat,
		Longitude: lon,
		Altitude:  alt,
		Time:      float64(now.UnixNano()) / 1e9,
	}
}
