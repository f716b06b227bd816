package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"altitude-recorder/internal/location"
	"altitude-recorder/internal/logger"
	"altitude-recorder/internal/models"
)

// ErrNoFix is returned by CaptureOnce before any fix has arrived.
var ErrNoFix = errors.New("no current fix")

// Store is the persistence the controller writes to.
type Store interface {
	Save(ctx context.Context, lat, lon, alt float64) (models.TrackPoint, error)
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

// Marker is one entry of the live map trail.
type Marker struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Title     string  `json:"title"`
}

type coordinate struct {
	lat, lon float64
}

// State is a point-in-time view of the controller.
type State struct {
	Recording   bool          `json:"recording"`
	Captured    int           `json:"captured"`
	Current     *location.Fix `json:"current,omitempty"`
	Readout     string        `json:"readout,omitempty"`
	Affordances Affordances   `json:"affordances"`
}

// Controller decides which fixes are persisted. All transitions run under
// one lock so storage calls never overlap.
type Controller struct {
	mu    sync.Mutex
	store Store

	recording    bool
	lastAccepted *coordinate
	captured     int
	current      *location.Fix
	markers      []Marker
}

// NewController seeds the captured count from the store.
func NewController(ctx context.Context, store Store) *Controller {
	c := &Controller{store: store}
	n, err := store.Count(ctx)
	if err != nil {
		logger.Error(err, "count stored points")
		n = 0
	}
	c.captured = int(n)
	return c
}

// OnFix handles one incoming fix. While recording it is persisted unless
// at least two points were captured and its lat/lon exactly equal the last
// accepted coordinate.
func (c *Controller) OnFix(ctx context.Context, fix location.Fix) Affordances {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := fix
	c.current = &cp

	if !c.recording {
		c.markers = c.markers[:0]
	} else if c.shouldCapture(fix) {
		if err := c.saveLocked(ctx, fix); err != nil {
			logger.Error(err, "record fix", "lat", fix.Latitude, "lon", fix.Longitude)
		} else {
			c.lastAccepted = &coordinate{lat: fix.Latitude, lon: fix.Longitude}
		}
	}

	c.markers = append(c.markers, Marker{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Title:     fmt.Sprintf("%.2f meters", fix.Altitude),
	})
	return c.affordancesLocked()
}

func (c *Controller) shouldCapture(fix location.Fix) bool {
	if c.captured <= 1 || c.lastAccepted == nil {
		return true
	}
	return !(c.lastAccepted.lat == fix.Latitude && c.lastAccepted.lon == fix.Longitude)
}

// CaptureOnce persists the current fix regardless of recording state or
// duplicate suppression.
func (c *Controller) CaptureOnce(ctx context.Context) (Affordances, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return c.affordancesLocked(), ErrNoFix
	}
	if err := c.saveLocked(ctx, *c.current); err != nil {
		logger.Error(err, "capture fix")
		return c.affordancesLocked(), err
	}
	return c.affordancesLocked(), nil
}

func (c *Controller) ToggleRecording() Affordances {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recording = !c.recording
	logger.Info("recording toggled", "recording", c.recording, "captured", c.captured)
	return c.affordancesLocked()
}

// Reset deletes every stored point and clears the trail. If the delete
// fails the count is re-read so it keeps matching the store.
func (c *Controller) Reset(ctx context.Context) Affordances {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.markers = nil
	c.lastAccepted = nil
	c.captured = 0

	if err := c.store.DeleteAll(ctx); err != nil {
		logger.Error(err, "reset stored points")
		if n, cerr := c.store.Count(ctx); cerr == nil {
			c.captured = int(n)
		}
	}
	return c.affordancesLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Recording:   c.recording,
		Captured:    c.captured,
		Affordances: c.affordancesLocked(),
	}
	if c.current != nil {
		cur := *c.current
		st.Current = &cur
		st.Readout = AltitudeReadout(cur.Latitude, cur.Longitude, cur.Altitude)
	}
	return st
}

// Markers returns a copy of the live trail.
func (c *Controller) Markers() []Marker {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Marker, len(c.markers))
	copy(out, c.markers)
	return out
}

func (c *Controller) saveLocked(ctx context.Context, fix location.Fix) error {
	if _, err := c.store.Save(ctx, fix.Latitude, fix.Longitude, fix.Altitude); err != nil {
		return err
	}
	c.captured++
	return nil
}

func (c *Controller) affordancesLocked() Affordances {
	return ComputeAffordances(c.recording, c.captured, c.current != nil)
}
