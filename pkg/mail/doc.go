// Package mail provides email notification functionality for RetroQuest:
// an SMTP transport with optional retries, a log transport for development,
// the password reset message composer, and the feature-gated notifier that
// dispatches plain-text notifications on a best-effort basis.
package mail
