// Package api provides the HTTP admin API and WebSocket event stream for
// Gray Store.
//
// It exposes the open databases, the checkpoint scheduler's counters and a
// way to request checkpoints. GET /ws upgrades to a feed of JSON frames:
//
//	{"type":"subscribe","id":"1","payload":{"channels":["checkpoint.done"],"paths":["/data/app.db"]}}
//	{"type":"ack","id":"1","payload":{"channels":["checkpoint.done"],"paths":["/data/app.db"]}}
//	{"type":"event","channel":"checkpoint.done","time":"...","payload":{...}}
//
// An empty paths list matches every database. Ping frames are answered
// with pong.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
