// Package logging provides structured, subsystem-tagged logging for
// gitscribe, built on the standard library's slog package.
//
// All log entries carry a subsystem identifier so that operators can filter
// output per component:
//
//	logging.Init(logging.LevelInfo, os.Stdout)
//	logging.Info("Bootstrap", "server starting on %s", addr)
//	logging.Error("GitSync", err, "pull failed for session %s", logging.TruncateID(id))
//
// Subsystems in use: Bootstrap, Config, Sessions, GitSync, OAuth, TokenStore,
// Cleanup, Deploy, Content, HTTP.
//
// Identifiers that double as credentials (session ids, device codes) must be
// passed through TruncateID before logging.
package logging
