// Package influxdb provides InfluxDB connectivity for sfcd.
//
// Recorded samples always land in SQLite first. When influxdb.enabled is
// set, each sample is also mirrored here as an "sfc_sample" point so runs
// can be graphed alongside other plant data.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSample(influxdb.SamplePoint{RunID: runID, Variable: id, Raw: "42"})
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered to the
// SetOnError callback. Connection and health check errors are returned directly.
package influxdb
