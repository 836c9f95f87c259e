// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

// Product is the name reported by the CLI and the health endpoint.
const Product = "social-scraper"

// Info contains version information.
type Info struct {
	Product   string `json:"product" yaml:"product"`
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
}

// Get returns the current version info.
func Get() Info {
	return Info{
		Product:   Product,
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
	}
}

// String returns "<product> <version> (<commit>)".
func (i Info) String() string {
	if i.Commit == "" || i.Commit == "unknown" {
		return fmt.Sprintf("%s %s", i.Product, i.Version)
	}
	short := i.Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s %s (%s)", i.Product, i.Version, short)
}
