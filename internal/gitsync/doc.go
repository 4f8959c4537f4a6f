// Package gitsync drives the external git binary for workspace
// synchronization: initialization against a remote, the commit-and-push
// pipeline with generated per-file messages, and pull with automatic
// stashing.
//
// All subprocess execution goes through the Runner interface so tests can
// script git's behavior without a repository. Failures are classified from
// git's stderr into coarse categories; the raw diagnostics never reach
// users.
package gitsync
