// Package syncqueue uploads locally decided check-ins to the server.
//
// A Drainer replays the offline queue in enqueue order. A Runner drains in
// the background on a timer and on demand, and a Watcher tracks whether the
// server is reachable.
package syncqueue
