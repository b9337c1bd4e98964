package version

import "fmt"

// Version, GitCommit and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/fcpp-project/fcpp-go/pkg/version.Version=v1.0.0 \
//	  -X github.com/fcpp-project/fcpp-go/pkg/version.GitCommit=abc1234 \
//	  -X github.com/fcpp-project/fcpp-go/pkg/version.BuildDate=2026-01-01"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a one-line human-readable build description.
func Info() string {
	return fmt.Sprintf("fcpp-go %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
