package recorder

import "fmt"

// Affordances is the set of controls a UI should offer for a given state.
type Affordances struct {
	RecordLabel    string `json:"record_label"`
	CaptureEnabled bool   `json:"capture_enabled"`
	ExportEnabled  bool   `json:"export_enabled"`
	ResetEnabled   bool   `json:"reset_enabled"`
	CountLabel     string `json:"count_label"`
}

// ComputeAffordances derives the control set from recorder state.
func ComputeAffordances(recording bool, captured int, hasFix bool) Affordances {
	a := Affordances{RecordLabel: "Record"}
	if recording {
		a.RecordLabel = "Stop"
	}
	a.CaptureEnabled = !recording && hasFix
	a.ExportEnabled = !recording && captured > 0
	a.ResetEnabled = !recording && captured > 0
	if captured > 0 {
		a.CountLabel = fmt.Sprintf("%d Locations captured", captured)
	}
	return a
}

// AltitudeReadout formats the live altitude line shown next to the map.
func AltitudeReadout(lat, lon, altM float64) string {
	return fmt.Sprintf("Altitude at %.6f, %.6f is: %.1f m (%.1f ft)", lat, lon, altM, altM*3.2808)
}
