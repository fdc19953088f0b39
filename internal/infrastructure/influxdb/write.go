package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/graystore/internal/checkpoint"
	"github.com/nerrad567/graystore/internal/trace"
)

// Measurement names.
const (
	measurementFootprint  = "sql_footprint"
	measurementCheckpoint = "wal_checkpoint"
	measurementScheduler  = "checkpoint_scheduler"
)

var _ checkpoint.Notifier = (*Client)(nil)

// WriteFootprint records one SQL footprint. The database path is a tag;
// each statement kind becomes an integer field alongside the total and the
// cost in microseconds.
func (c *Client) WriteFootprint(fp trace.Footprint) {
	c.write(footprintPoint(fp, time.Now()))
}

// FootprintTrace returns a performance trace that writes every footprint.
//
//	traces.SetPerformanceTrace(trace.Fanout(trace.LogSlow(log, slow), influx.FootprintTrace()))
func (c *Client) FootprintTrace() trace.PerformanceTrace {
	return c.WriteFootprint
}

// CheckpointDone implements checkpoint.Notifier by recording the attempt.
func (c *Client) CheckpointDone(r checkpoint.Result) {
	c.write(checkpointPoint(r))
}

// WriteSchedulerStats records a snapshot of the checkpoint scheduler's
// counters.
func (c *Client) WriteSchedulerStats(s checkpoint.Stats) {
	c.write(statsPoint(s, time.Now()))
}

func footprintPoint(fp trace.Footprint, at time.Time) *write.Point {
	fields := map[string]interface{}{
		"total":   int64(fp.Total()),
		"cost_us": fp.Cost.Microseconds(),
	}
	for kind, n := range fp.Statements {
		fields[kind] = int64(n)
	}
	return write.NewPoint(measurementFootprint,
		map[string]string{"path": fp.Path},
		fields,
		at,
	)
}

func checkpointPoint(r checkpoint.Result) *write.Point {
	status := "ok"
	if r.Err != nil {
		status = "error"
	}
	at := r.Started
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(measurementCheckpoint,
		map[string]string{"path": r.Path, "status": status},
		map[string]interface{}{"duration_us": r.Duration.Microseconds()},
		at,
	)
}

func statsPoint(s checkpoint.Stats, at time.Time) *write.Point {
	return write.NewPoint(measurementScheduler,
		nil,
		map[string]interface{}{
			"observed":  s.Observed,
			"queued":    s.Queued,
			"dropped":   s.Dropped,
			"skipped":   s.Skipped,
			"completed": s.Completed,
			"failed":    s.Failed,
			"pending":   int64(s.Pending),
		},
		at,
	)
}
