// Package version reports podflow build information.
//
// Version, commit, branch and build time are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/podflow/version.Version=1.0.0" ./cmd/podflow
//
// Missing values fall back to the module's embedded VCS settings.
package version
