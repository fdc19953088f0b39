// Package timedqueue provides a generic debounce queue.
//
// A TimedQueue maps keys to expiry times. Re-queueing a key that is already
// pending moves its expiry to now+delay instead of adding a second entry, so
// a burst of signals for the same key collapses into one delivery that fires
// delay after the last signal.
//
// # Usage
//
//	q := timedqueue.New[string](2 * time.Second)
//	q.ReQueue("/data/app.db")
//
//	go q.WaitUntilExpired(ctx, func(path string) {
//	    // runs at most once per quiet period per path
//	})
//
// Keys are delivered in ascending expiry order. Because the delay is fixed
// this is the order of each key's most recent ReQueue call.
package timedqueue
