package tools

import (
	"context"
	"fmt"
	"strings"

	"tuxpilot/pkg/proto"
)

// ToolPackageLookup is the name of the package metadata tool.
const ToolPackageLookup = "package_lookup"

// maxPackageOutput caps the metadata passed back to the model.
const maxPackageOutput = 4096

// PackageLookupTool queries the local package manager for package metadata.
// All commands are read-only metadata queries; nothing is ever installed.
type PackageLookupTool struct {
	profile    proto.SystemProfile
	runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewPackageLookupTool creates a package lookup tool for the given system.
func NewPackageLookupTool(profile proto.SystemProfile) *PackageLookupTool {
	return &PackageLookupTool{profile: profile, runCommand: runCommand}
}

// Name returns the tool name.
func (t *PackageLookupTool) Name() string {
	return ToolPackageLookup
}

// queryCommand maps the system's package manager to its read-only info
// query. Unknown managers fall back to apt.
func (t *PackageLookupTool) queryCommand(pkg string) (string, []string) {
	switch strings.ToLower(t.profile.PackageManager) {
	case "pacman":
		return "pacman", []string{"-Si", pkg}
	case "dnf", "yum":
		return "dnf", []string{"info", pkg}
	case "zypper":
		return "zypper", []string{"info", pkg}
	case "apk":
		return "apk", []string{"info", "-d", pkg}
	default:
		return "apt-cache", []string{"show", pkg}
	}
}

// Exec queries metadata for one package name. The name is passed as a
// single argv element, never through a shell.
func (t *PackageLookupTool) Exec(ctx context.Context, query string) (*Result, error) {
	pkg := strings.TrimSpace(query)
	if pkg == "" {
		return nil, fmt.Errorf("package name is required")
	}
	if strings.ContainsAny(pkg, " \t\n") {
		pkg = strings.Fields(pkg)[0]
	}

	name, args := t.queryCommand(pkg)
	raw, err := t.runCommand(ctx, name, args...)
	if err != nil {
		return nil, fmt.Errorf("package query %s failed: %w", name, err)
	}

	content := strings.TrimSpace(string(raw))
	if content == "" {
		content = fmt.Sprintf("no package metadata for %q", pkg)
	}
	if len(content) > maxPackageOutput {
		content = content[:maxPackageOutput] + "\n[truncated]"
	}
	return &Result{Content: content}, nil
}
