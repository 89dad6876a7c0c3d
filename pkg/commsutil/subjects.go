package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectRequests = "pkgsvc.v1.requests"
	SubjectEvents   = "pkgsvc.v1.events"
	inboxPrefix     = "pkgsvc.v1.client."
)

// BuildClientInbox builds the private reply subject of one client instance.
// Responses and per-client pushes are published here.
func BuildClientInbox(clientID string) string {
	return inboxPrefix + strings.ReplaceAll(clientID, ".", "_")
}

// IsClientInbox reports whether subject was produced by BuildClientInbox.
func IsClientInbox(subject string) bool {
	return strings.HasPrefix(subject, inboxPrefix) && len(subject) > len(inboxPrefix)
}

// BuildRequestSubject scopes the request subject to a named service instance.
// An empty instance returns SubjectRequests.
func BuildRequestSubject(instance string) string {
	if instance == "" {
		return SubjectRequests
	}
	return fmt.Sprintf("%s.%s", SubjectRequests, strings.ReplaceAll(instance, ".", "_"))
}
