/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"context"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	EventPasswordResetRequested EventType = "password_reset.requested"
	EventPasswordResetValidated EventType = "password_reset.validated"
	EventPasswordResetConsumed  EventType = "password_reset.consumed"

	EventNotificationSent    EventType = "notification.sent"
	EventNotificationFailed  EventType = "notification.failed"
	EventNotificationSkipped EventType = "notification.skipped"
)

// Severity indicates how much attention an event deserves.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SeverityForEventType returns the default severity of t.
func SeverityForEventType(t EventType) Severity {
	switch t {
	case EventNotificationFailed:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Event is a single audit record.
type Event struct {
	// ID is a unique identifier for this event
	ID string `json:"id"`

	Type     EventType `json:"type"`
	Severity Severity  `json:"severity"`

	// Timestamp is when the event occurred (UTC)
	Timestamp time.Time `json:"timestamp"`

	Actor  Actor  `json:"actor"`
	Target Target `json:"target"`

	// Details contains event-specific information
	Details map[string]interface{} `json:"details,omitempty"`
}

// Actor is who triggered an event. For unauthenticated reset requests User
// is the address the request named.
type Actor struct {
	User      string `json:"user"`
	SourceIP  string `json:"sourceIP,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Target is what an event is about, e.g. Kind "Team" or "Notification".
type Target struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Emitter accepts audit events. Emit never fails the caller.
type Emitter interface {
	Emit(ctx context.Context, event *Event)
}
