// Package metrics defines Prometheus metrics for the RetroQuest notifier,
// covering notification dispatch, password reset requests and audit delivery.
package metrics
