package recording

import (
	"context"

	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/influxdb"
)

// SampleWriter is the part of the InfluxDB client the mirror uses.
type SampleWriter interface {
	WriteSample(p influxdb.SamplePoint)
}

// InfluxMirror writes samples to InfluxDB as sfc_sample points.
// Writes are queued by the client, so Append never fails.
type InfluxMirror struct {
	client SampleWriter
}

// NewInfluxMirror wraps an InfluxDB client.
func NewInfluxMirror(client SampleWriter) *InfluxMirror {
	return &InfluxMirror{client: client}
}

// Append implements Sink.
func (m *InfluxMirror) Append(_ context.Context, samples []Sample) error {
	for _, smp := range samples {
		p := influxdb.SamplePoint{
			RunID:        smp.RunID,
			Variable:     smp.Variable,
			ShortName:    smp.ShortName,
			DeclaredType: smp.DeclaredType,
			Quality:      smp.Quality,
			Raw:          smp.Value,
			Timestamp:    smp.Timestamp,
		}
		if v := smp.Decoded(); v != nil {
			if f, ok := v.Float64(); ok {
				p.Numeric = &f
			}
		}
		m.client.WriteSample(p)
	}
	return nil
}
