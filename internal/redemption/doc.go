// Package redemption decides locally whether a scanned ticket is admitted.
//
// The Engine runs the check pipeline against the local ticket store and, for
// an admitted ticket, appends the check-in and queues the redemption for
// upload in one transaction. Rejections are queued as failed check-ins.
// Decisions about the same secret are serialized; different secrets are
// decided concurrently.
package redemption
