// Package influxdb provides InfluxDB connectivity for Gray Store.
//
// It wraps the official influxdb-client-go v2 library and records:
//   - SQL footprints (measurement sql_footprint, tagged by database path)
//   - Checkpoint attempts (measurement wal_checkpoint, tagged by path and status)
//   - Scheduler counters (measurement checkpoint_scheduler)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	traces.SetPerformanceTrace(client.FootprintTrace())
//	sched.AddNotifier(client)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; errors are
// delivered to the SetOnError callback.
package influxdb
