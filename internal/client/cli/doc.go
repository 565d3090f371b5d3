// Package cli provides the interactive GophScan gate client.
//
// It wires configuration, the local ticket store, the remote ticket service
// and the redemption engine behind a line-based REPL. A scanner that acts as
// a keyboard can feed secrets straight into the prompt.
//
// Key features:
//   - Redeem tickets online, offline or from signed secrets
//   - Prompt for check-in questions and retry the same attempt
//   - Search tickets and show check-in list statistics
//   - Queue offline scans and upload them in the background
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
