package toolchain

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/outpost-os/shieldmeta/internal/command"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

// IsSemver reports whether v is a complete semantic version
// (MAJOR.MINOR.PATCH with optional pre-release and build), without a
// leading "v".
func IsSemver(v string) bool {
	if v == "" || strings.HasPrefix(v, "v") {
		return false
	}
	sv := "v" + v
	return semver.IsValid(sv) && semver.Canonical(sv) == strings.TrimSuffix(sv, semver.Build(sv))
}

// ResolveVersion returns declared if it is a semantic version, otherwise the
// version derived from the nearest git tag in dir, otherwise
// meta.VersionUnknown.
func ResolveVersion(ctx context.Context, run command.Runner, dir, declared string) string {
	if IsSemver(declared) {
		return declared
	}
	if run != nil {
		out, err := run(ctx, dir, "git", "describe", "--tags", "--always", "--dirty")
		if err == nil {
			v := strings.TrimPrefix(strings.TrimSpace(string(out)), "v")
			if IsSemver(v) {
				slog.Debug("derived version from git", "dir", dir, "declared", declared, "version", v)
				return v
			}
		} else {
			slog.Debug("git describe failed", "dir", dir, "error", err)
		}
	}
	return meta.VersionUnknown
}
