// Package client contains the device's connection to the ticketing server
// and the bootstrap of its local store.
//
// # Overview
//
// The package provides:
//  1. The Client interface: the remote ticket service used by the online
//     validator (Redeem, Search, CheckInListStatus, Questions), by the queue
//     drain (Redeem, UploadFailedCheckIn) and by the connectivity watcher (Ping).
//  2. GRPCClient, a gRPC implementation that exchanges JSON messages through a
//     registered codec, injects the device token via an interceptor, traces
//     calls with OpenTelemetry and maps status codes to the sentinel errors of
//     package common.
//  3. The service description (RegisterTicketServiceServer) for servers and
//     tests.
//  4. Local persistence bootstrap (InitDatabase, RunMigrations).
//
// # Error Handling
//
// Transport failures are reported as common.ErrUnavailable,
// common.ErrUnauthorized, common.ErrForbidden, *common.RateLimitError,
// common.ErrRejected or common.ErrMalformedPayload; match them with errors.Is.
package client
