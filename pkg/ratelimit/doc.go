// Package ratelimit provides keyed token-bucket rate limiting with a Gin
// middleware that keys by client IP.
package ratelimit
