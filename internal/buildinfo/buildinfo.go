// Package buildinfo exposes version metadata stamped at link time.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Set via -ldflags at build time; defaults identify a dev build.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Info returns build and runtime facts for the version endpoint.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     Uptime().String(),
	}
}

// Uptime is the time since process start, truncated to seconds.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// String is a one-line summary for startup logging.
func String() string {
	return fmt.Sprintf("Alicia %s (%s) built %s", Version, GitCommit, BuildTime)
}

// UserAgent identifies outbound HTTP requests from this process.
func UserAgent() string {
	return fmt.Sprintf("alicia/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}
