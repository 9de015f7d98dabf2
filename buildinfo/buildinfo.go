// Package buildinfo holds application metadata set at build time:
//
//	go build -ldflags "\
//	  -X github.com/nedpals/nfc-watch-agent/buildinfo.Version=1.0.0 \
//	  -X github.com/nedpals/nfc-watch-agent/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	// Name is the binary and config directory name.
	Name = "nfc-watch-agent"

	// DisplayName is used for the tray title and the mDNS instance.
	DisplayName = "NFC Watch Agent"

	Description = "Forwards NFC tag reads to web pages and subscribers"

	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// FullVersion returns the version with the commit when known, e.g.
// "1.0.0 (abc1234)".
func FullVersion() string {
	if Commit != "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return Version
}

// String returns a multi-line summary for -version.
func String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", Name, FullVersion())
	fmt.Fprintf(&b, "  %s\n", Description)
	fmt.Fprintf(&b, "  Go: %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		fmt.Fprintf(&b, "\n  Built: %s", BuildTime)
	}
	return b.String()
}

// IsDev reports whether this is a development build.
func IsDev() bool {
	return Version == "dev"
}
