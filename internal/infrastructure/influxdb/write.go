package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SampleMeasurement is the measurement name recorded samples are written under.
const SampleMeasurement = "sfc_sample"

// SamplePoint is one recorded variable change in InfluxDB terms.
//
// Numeric values go to the "value" field so they can be graphed; anything
// else (strings, nulls from failed reads) is kept verbatim in "raw".
type SamplePoint struct {
	RunID        string
	Variable     string
	ShortName    string
	DeclaredType string
	Quality      string

	// Numeric is nil when the value has no numeric view.
	Numeric *float64

	// Raw is the serialized value as stored in SQLite.
	Raw string

	Timestamp time.Time
}

// WriteSample queues a sample point. No-op when not connected.
func (c *Client) WriteSample(p SamplePoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newSamplePoint(p))
}

// newSamplePoint builds the line-protocol point for a sample.
// Run id and variable are tags so a run's curves can be selected directly.
func newSamplePoint(p SamplePoint) *write.Point {
	tags := map[string]string{
		"run_id":   p.RunID,
		"variable": p.Variable,
	}
	if p.ShortName != "" {
		tags["short_name"] = p.ShortName
	}
	if p.DeclaredType != "" {
		tags["declared_type"] = p.DeclaredType
	}

	fields := map[string]interface{}{
		"raw":     p.Raw,
		"quality": p.Quality,
	}
	if p.Numeric != nil {
		fields["value"] = *p.Numeric
	}

	return write.NewPoint(SampleMeasurement, tags, fields, p.Timestamp)
}
