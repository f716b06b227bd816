package location

import (
	"fmt"
	"math"
	"time"
)

// Fix is one reported location sample.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Time      time.Time `json:"timestamp"`
}

// Validate rejects coordinates outside WGS84 bounds and NaNs.
func (f Fix) Validate() error {
	if math.IsNaN(f.Latitude) || f.Latitude < -90 || f.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", f.Latitude)
	}
	if math.IsNaN(f.Longitude) || f.Longitude < -180 || f.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", f.Longitude)
	}
	if math.IsNaN(f.Altitude) || math.IsInf(f.Altitude, 0) {
		return fmt.Errorf("altitude %v is not finite", f.Altitude)
	}
	return nil
}

// Feed validates fixes from any source and forwards them to a single
// handler.
type Feed struct {
	handler func(Fix)
}

func NewFeed(handler func(Fix)) *Feed {
	return &Feed{handler: handler}
}

// Publish forwards fix to the handler.
func (f *Feed) Publish(fix Fix) error {
	if err := fix.Validate(); err != nil {
		return err
	}
	if f.handler != nil {
		f.handler(fix)
	}
	return nil
}
