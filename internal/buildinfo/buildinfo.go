// Package buildinfo carries build-time metadata injected through ldflags.
package buildinfo

import "runtime/debug"

// UnknownValue is reported for metadata that was not injected.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/tphakala/plantid/internal/buildinfo.version=..."
var (
	version   string
	buildDate string
)

// Context holds build metadata. It is separate from user configuration.
type Context struct {
	Version   string
	BuildDate string
}

// NewContext returns a Context with the given values.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// Current returns the metadata linked into this binary. Without ldflags the
// module version from the embedded build info is used when available.
func Current() *Context {
	v := version
	if v == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	return NewContext(v, buildDate)
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}
