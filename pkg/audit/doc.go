// Package audit records what the notifier did: reset requests, delivered and
// failed notifications. Events flow through a Manager into a Sink (structured
// log, Kafka, or both).
package audit
