package version_test

import (
	"runtime/debug"
	"testing"

	"github.com/usnistgov/hugeplane/core/testenv"
	"github.com/usnistgov/hugeplane/core/version"
)

var makeAR = testenv.MakeAR

func TestFromBuildInfo(t *testing.T) {
	assert, _ := makeAR(t)

	bi := &debug.BuildInfo{
		GoVersion: "go1.21.5",
		Main:      debug.Module{Path: "github.com/usnistgov/hugeplane"},
		Settings: []debug.BuildSetting{
			{Key: "vcs", Value: "git"},
			{Key: "vcs.revision", Value: "0123456789abcdef0123456789abcdef01234567"},
			{Key: "vcs.time", Value: "2024-03-05T06:07:08Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	v := version.FromBuildInfo(bi)
	assert.Equal("go1.21.5", v.Go)
	assert.True(v.Modified)
	assert.Equal("v0.0.0-20240305060708-0123456789ab+dirty", v.String())

	v.Modified = false
	assert.Equal("v0.0.0-20240305060708-0123456789ab", v.String())

	assert.Equal("devel", version.FromBuildInfo(&debug.BuildInfo{}).String())
}
