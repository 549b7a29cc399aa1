package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"tuxpilot/pkg/proto"
)

// detectProfile gathers best-effort facts about the local machine. Every
// field may be empty; downstream prompts handle missing data.
func detectProfile() *proto.SystemProfile {
	profile := &proto.SystemProfile{
		Arch:  runtime.GOARCH,
		Shell: filepath.Base(os.Getenv("SHELL")),
	}
	if profile.Shell == "." {
		profile.Shell = ""
	}
	if name, version := readOSRelease("/etc/os-release"); name != "" {
		profile.Distro = name
		profile.DistroVersion = version
	}
	if kernel, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		profile.Kernel = strings.TrimSpace(string(kernel))
	}
	profile.PackageManager = detectPackageManager()
	profile.Desktop = os.Getenv("XDG_CURRENT_DESKTOP")
	return profile
}

func readOSRelease(path string) (name, version string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch key {
		case "ID":
			name = value
		case "VERSION_ID":
			version = value
		}
	}
	return name, version
}

// detectPackageManager probes PATH in rough order of distro popularity. The
// first hit wins; dual-manager systems (e.g. pacman plus flatpak) report the
// native one.
func detectPackageManager() string {
	for _, candidate := range []string{"apt", "dnf", "pacman", "zypper", "apk", "emerge", "xbps-install", "nix-env"} {
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func profileLine(p *proto.SystemProfile) string {
	parts := make([]string, 0, 3)
	if p.Distro != "" {
		distro := p.Distro
		if p.DistroVersion != "" {
			distro += " " + p.DistroVersion
		}
		parts = append(parts, distro)
	}
	if p.PackageManager != "" {
		parts = append(parts, p.PackageManager)
	}
	if p.Kernel != "" {
		parts = append(parts, "kernel "+p.Kernel)
	}
	if len(parts) == 0 {
		return "unknown system"
	}
	return strings.Join(parts, ", ")
}
