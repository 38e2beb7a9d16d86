package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent_Defaults(t *testing.T) {
	build := Current()

	assert.Equal(t, "dev", build.Version)
	assert.Equal(t, "unknown", build.Commit)
	assert.Equal(t, runtime.Version(), build.GoVersion)
	assert.True(t, build.Dev())
	assert.Equal(t, build.Version, GetVersion())
}

func TestCurrent_Ldflags(t *testing.T) {
	prevVersion, prevCommit, prevDate := version, commit, date
	t.Cleanup(func() { version, commit, date = prevVersion, prevCommit, prevDate })
	version, commit, date = "v1.4.0", "3f9c2ab", "2026-09-30T08:00:00Z"

	build := Current()
	assert.False(t, build.Dev())
	assert.Equal(t, "v1.4.0", GetVersion())

	fields := build.Fields()
	assert.Equal(t, "v1.4.0", fields["version"])
	assert.Equal(t, "3f9c2ab", fields["commit"])
	assert.Equal(t, "2026-09-30T08:00:00Z", fields["built"])
}
