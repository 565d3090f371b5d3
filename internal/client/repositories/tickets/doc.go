// Package tickets is the local ticket store: the device's mirror of
// synchronized event data plus the append-only check-in log.
//
// Lookups return common.ErrNotFound when nothing matches. Redemptions are
// committed together with their upload queue entry in one transaction.
package tickets
