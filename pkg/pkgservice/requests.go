package pkgservice

import (
	"encoding/json"

	"github.com/morezero/pkgservice-client/pkg/rpc"
)

// Wire method names.
const (
	MethodStatus              = "status"
	MethodInstall             = "install"
	MethodUninstall           = "uninstall"
	MethodRepository          = "repository"
	MethodRepositoryStatuses  = "repository_statuses"
	MethodDownloadSubscribe   = "download_subscribe"
	MethodDownloadUnsubscribe = "download_unsubscribe"
	MethodDownload            = "download"
	MethodHealth              = "health"
)

// StatusRequest queries the install status of packageID.
func StatusRequest(repoURL, packageID string, target Target) rpc.Request[InstallStatus] {
	return rpc.NewRequest[InstallStatus](MethodStatus, repoURL, packageID, target)
}

// InstallRequest starts installing packageID. The service answers with the
// status after accepting the request, normally StatusInstalling.
func InstallRequest(repoURL, packageID string, target Target) rpc.Request[InstallStatus] {
	return rpc.NewRequest[InstallStatus](MethodInstall, repoURL, packageID, target)
}

// UninstallRequest starts removing packageID.
func UninstallRequest(repoURL, packageID string, target Target) rpc.Request[InstallStatus] {
	return rpc.NewRequest[InstallStatus](MethodUninstall, repoURL, packageID, target)
}

// RepositoryRequest fetches repository metadata.
func RepositoryRequest(repoURL string) rpc.Request[Repository] {
	return rpc.NewRequest[Repository](MethodRepository, repoURL)
}

// RepositoryStatusesRequest fetches the state of every package in a repository.
func RepositoryStatusesRequest(repoURL string) rpc.Request[map[string]PackageState] {
	return rpc.NewRequest[map[string]PackageState](MethodRepositoryStatuses, repoURL)
}

// DownloadSubscription subscribes to download progress for packageID. The
// acknowledgment lists the ids of downloads in flight.
func DownloadSubscription(packageID string) rpc.SubscriptionRequest[[]uint64, DownloadProgress] {
	return rpc.NewSubscription[[]uint64, DownloadProgress](MethodDownloadSubscribe, MethodDownloadUnsubscribe, MethodDownload, packageID)
}

// Health is the service's self-report.
type Health struct {
	Status    string          `json:"status"`
	Version   string          `json:"version,omitempty"`
	Downloads int             `json:"downloads"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// HealthRequest asks the service for its health.
func HealthRequest() rpc.Request[Health] {
	return rpc.NewRequest[Health](MethodHealth)
}
