// Package queue is the durable offline upload queue of the device.
//
// Entries live in an arena table keyed by nonce; a separate FIFO index with
// an autoincrement sequence preserves enqueue order. Payloads are stored as
// deterministic CBOR.
package queue
