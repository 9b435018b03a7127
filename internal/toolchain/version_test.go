package toolchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-os/shieldmeta/internal/meta"
	"github.com/outpost-os/shieldmeta/internal/testutil"
)

func TestIsSemver(t *testing.T) {
	valid := []string{"1.2.0", "0.0.1", "1.2.0-rc.1", "1.2.0+build.5", "1.2.0-3-gabc1234-dirty"}
	invalid := []string{"", "1.2", "1", "v1.2.0", "undefined", "abc1234", "1.2.0.4"}

	for _, v := range valid {
		assert.True(t, IsSemver(v), v)
	}
	for _, v := range invalid {
		assert.False(t, IsSemver(v), v)
	}
}

func TestResolveVersionDeclared(t *testing.T) {
	r := testutil.NewFakeRunner()
	v := ResolveVersion(context.Background(), r.Run, "/src", "1.2.0")
	assert.Equal(t, "1.2.0", v)
	assert.Empty(t, r.Calls(), "git must not run for a declared version")
}

func TestResolveVersionFromGit(t *testing.T) {
	r := testutil.NewFakeRunner().Output("git", "v1.3.0-2-g1a2b3c4\n")
	v := ResolveVersion(context.Background(), r.Run, "/src", "undefined")
	assert.Equal(t, "1.3.0-2-g1a2b3c4", v)

	calls := r.CallsTo("git")
	require.Len(t, calls, 1)
	assert.Equal(t, "/src", calls[0].Dir)
	assert.Equal(t, []string{"describe", "--tags", "--always", "--dirty"}, calls[0].Args)
}

func TestResolveVersionUnknown(t *testing.T) {
	tests := []struct {
		name   string
		runner *testutil.FakeRunner
	}{
		{"untagged hash", testutil.NewFakeRunner().Output("git", "1a2b3c4\n")},
		{"git fails", testutil.NewFakeRunner().Fail("git", "fatal: not a git repository")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, meta.VersionUnknown, ResolveVersion(context.Background(), tt.runner.Run, "/src", ""))
		})
	}
	assert.Equal(t, meta.VersionUnknown, ResolveVersion(context.Background(), nil, "/src", "1.2"))
}
