// Package api implements the Gin HTTP server of the notifier: the password
// reset endpoints under /api/password plus health, version and metrics.
package api
