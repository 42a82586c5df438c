// Package buildinfo holds build-time metadata injected at startup. It is
// kept apart from user configuration and never read from config files.
package buildinfo

import "fmt"

// UnknownValue is returned for metadata that was not set at build time.
const UnknownValue = "unknown"

const appName = "eventlog-migrator"

// Context carries the build metadata of the running binary.
type Context struct {
	version    string
	buildDate  string
	instanceID string
}

// NewContext creates build metadata. instanceID identifies this process in
// logs and error reports.
func NewContext(version, buildDate, instanceID string) *Context {
	return &Context{version: version, buildDate: buildDate, instanceID: instanceID}
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

// Version returns the version tag, or UnknownValue.
func (c *Context) Version() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.version)
}

// BuildDate returns the build timestamp, or UnknownValue.
func (c *Context) BuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.buildDate)
}

// InstanceID returns the process identifier, or UnknownValue.
func (c *Context) InstanceID() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.instanceID)
}

// Release is the release name reported to Sentry.
func (c *Context) Release() string {
	return appName + "@" + c.Version()
}

// String renders the metadata for the version command.
func (c *Context) String() string {
	return fmt.Sprintf("%s %s (built %s)", appName, c.Version(), c.BuildDate())
}
