// Package events publishes service lifecycle broadcasts to connected clients.
package events

import "time"

// Reserved lifecycle push methods.
const (
	MethodServiceStopping     = "service_stopping"
	MethodRebootRequired      = "reboot_required"
	MethodRepositoriesChanged = "repositories_changed"
)

// LifecycleEvent is a broadcast not tied to any request.
type LifecycleEvent struct {
	Method    string `json:"method"`
	Reason    string `json:"reason,omitempty"`
	PackageID string `json:"packageId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewLifecycleEvent stamps an event for method with the current time.
func NewLifecycleEvent(method, reason string) *LifecycleEvent {
	return &LifecycleEvent{Method: method, Reason: reason, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

// Params is the push payload carried on the wire.
func (e *LifecycleEvent) Params() map[string]string {
	p := map[string]string{"timestamp": e.Timestamp}
	if e.Reason != "" {
		p["reason"] = e.Reason
	}
	if e.PackageID != "" {
		p["packageId"] = e.PackageID
	}
	return p
}
