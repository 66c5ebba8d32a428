// Package platform answers the few OS questions agent-recap cares about:
// whether the summarizer can get a pseudo-terminal, and whether filesystem
// change events can be trusted for the watch command.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform represents the detected platform
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformBSD     Platform = "bsd"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Detect returns the current platform, caching the result
func Detect() Platform {
	detectOnce.Do(func() {
		detected = detect(runtime.GOOS, readProcVersion)
	})
	return detected
}

func readProcVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return ""
	}
	return string(data)
}

func detect(goos string, procVersion func() string) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "freebsd", "openbsd", "netbsd", "dragonfly":
		return PlatformBSD
	case "linux":
		return detectLinux(procVersion())
	default:
		return PlatformUnknown
	}
}

// detectLinux tells native Linux from WSL by the kernel version string.
// WSL2 kernels say "microsoft-standard"; WSL1 reports "Microsoft".
func detectLinux(version string) Platform {
	switch {
	case strings.Contains(version, "microsoft-standard"):
		return PlatformWSL2
	case strings.Contains(version, "Microsoft"):
		return PlatformWSL1
	case os.Getenv("WSL_DISTRO_NAME") != "":
		return PlatformWSL2
	}
	return PlatformLinux
}

// SupportsPTY reports whether the summarizer runs behind a pseudo-terminal.
// Elsewhere it gets plain pipes.
func SupportsPTY() bool {
	switch Detect() {
	case PlatformMacOS, PlatformLinux, PlatformBSD, PlatformWSL1, PlatformWSL2:
		return true
	}
	return false
}

// RunnerName names the summarizer runner used on this platform.
func RunnerName() string {
	if SupportsPTY() {
		return "pty"
	}
	return "pipe"
}

// String returns a human-readable platform name
func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformBSD:
		return "BSD"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// CheckFsnotifySupport returns a warning when path sits on a filesystem whose
// change events are unreliable (9p, NFS, CIFS, sshfs), or "" when fsnotify
// should work. The watch command falls back to polling on a warning.
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	return fsnotifyWarning(mountFsType(string(mounts), absPath))
}

// mountFsType finds the filesystem type of the longest mount point
// containing absPath. Format: device mountpoint fstype options ...
func mountFsType(mounts, absPath string) string {
	var matchedMount, matchedFsType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mountPoint, fsType := fields[1], fields[2]
		if !underMount(absPath, mountPoint) {
			continue
		}
		if len(mountPoint) > len(matchedMount) {
			matchedMount = mountPoint
			matchedFsType = fsType
		}
	}
	return matchedFsType
}

func underMount(path, mountPoint string) bool {
	if mountPoint == "/" || path == mountPoint {
		return strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, mountPoint+"/")
}

func fsnotifyWarning(fsType string) string {
	switch {
	case fsType == "9p":
		return "sessions directory is on a 9p mount (WSL2 Windows filesystem); change events are not delivered"
	case fsType == "nfs" || fsType == "nfs4":
		return "sessions directory is on NFS; change events may be missed"
	case fsType == "cifs" || fsType == "smbfs":
		return "sessions directory is on CIFS/SMB; change events may be missed"
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "sessions directory is on SSHFS; change events are not delivered"
	}
	return ""
}
