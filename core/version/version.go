// Package version derives hugeplane version information from Go build info.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

// Version is hugeplane build information.
type Version struct {
	Module   string    `json:"module"`
	Revision string    `json:"revision,omitempty"`
	Time     time.Time `json:"time"`
	Modified bool      `json:"modified"`
	Go       string    `json:"go"`
}

// String returns a pseudo-version when VCS information is present, otherwise "devel".
func (v Version) String() string {
	if len(v.Revision) < 12 || v.Time.IsZero() {
		return "devel"
	}
	var b strings.Builder
	b.WriteString("v0.0.0-")
	b.WriteString(v.Time.UTC().Format("20060102150405"))
	b.WriteByte('-')
	b.WriteString(v.Revision[:12])
	if v.Modified {
		b.WriteString("+dirty")
	}
	return b.String()
}

// FromBuildInfo extracts version information from build info.
func FromBuildInfo(bi *debug.BuildInfo) (v Version) {
	v.Module, v.Go = bi.Main.Path, bi.GoVersion
	for _, kv := range bi.Settings {
		switch kv.Key {
		case "vcs.revision":
			v.Revision = kv.Value
		case "vcs.time":
			v.Time, _ = time.Parse(time.RFC3339, kv.Value)
		case "vcs.modified":
			v.Modified = kv.Value == "true"
		}
	}
	return v
}

// V is the version of the running binary.
var V = func() Version {
	if bi, ok := debug.ReadBuildInfo(); ok {
		return FromBuildInfo(bi)
	}
	return Version{Module: "github.com/usnistgov/hugeplane"}
}()
