// Package cli implements the retroquest-notifier command tree (serve, send,
// render, smtp-password, completion and version).
package cli
