// Package cli provides the interactive cipherbox command-line client.
//
// It wires configuration, the gRPC client, the session keyring and the
// transfer pipelines into a REPL. Typical flow: log in (which derives the
// session key locally), upload or download files, manage the trash, and
// look at duplicates, usage and the audit trail.
//
// Key features:
//   - Register / Login / Logout, with the key dropped after inactivity
//   - Upload and download with client-side encryption and verification
//   - Trash, restore and permanent purge
//   - Duplicate, usage and audit reports
//   - Triggering the retention sweep with the cron secret
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
