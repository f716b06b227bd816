package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

// dialGPSD connects to gpsd over TCP.
func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch enables JSON streaming reports.
func gpsdWatch(conn net.Conn) error {
	// scaled=true yields meters and degrees.
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"))
	return err
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdTPV struct {
	Class string `json:"class"`
	Mode  *int   `json:"mode"`
	Time  string `json:"time"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	Alt    *float64 `json:"alt"`
	AltMSL *float64 `json:"altMSL"`
}

// parseGPSDLine returns a fix for TPV reports carrying a 2D or 3D fix.
// Other classes (VERSION, DEVICES, WATCH, SKY) yield ok=false.
func parseGPSDLine(nowUTC time.Time, line string) (Fix, bool, error) {
	var base gpsdMsgBase
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return Fix{}, false, fmt.Errorf("gpsd json parse failed: %w", err)
	}
	if strings.ToUpper(strings.TrimSpace(base.Class)) != "TPV" {
		return Fix{}, false, nil
	}

	var tpv gpsdTPV
	if err := json.Unmarshal([]byte(line), &tpv); err != nil {
		return Fix{}, false, fmt.Errorf("gpsd tpv parse failed: %w", err)
	}
	if tpv.Mode == nil || *tpv.Mode < 2 || tpv.Lat == nil || tpv.Lon == nil {
		return Fix{}, false, nil
	}

	fix := Fix{Latitude: *tpv.Lat, Longitude: *tpv.Lon, Time: nowUTC}
	if strings.TrimSpace(tpv.Time) != "" {
		if t, err := time.Parse(time.RFC3339Nano, tpv.Time); err == nil {
			fix.Time = t.UTC()
		}
	}

	altM := tpv.AltMSL
	if altM == nil {
		altM = tpv.Alt
	}
	if altM != nil {
		fix.Altitude = *altM
	}
	return fix, true, nil
}
