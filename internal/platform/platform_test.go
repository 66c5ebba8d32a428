package platform

import (
	"runtime"
	"testing"
)

func TestDetect(t *testing.T) {
	p := Detect()
	if p == "" {
		t.Error("Detect() returned empty platform")
	}
	if runtime.GOOS == "darwin" && p != PlatformMacOS {
		t.Errorf("Expected PlatformMacOS on darwin, got %s", p)
	}
	if runtime.GOOS == "windows" && SupportsPTY() {
		t.Error("Windows must use the pipe runner")
	}

	// Detection should be cached
	if p2 := Detect(); p != p2 {
		t.Errorf("Detect() not cached: got %s then %s", p, p2)
	}
}

func TestDetectByGOOS(t *testing.T) {
	native := func() string { return "Linux version 6.8.0-45-generic (buildd@lcy02)" }
	tests := []struct {
		goos    string
		version func() string
		want    Platform
	}{
		{"darwin", native, PlatformMacOS},
		{"windows", native, PlatformWindows},
		{"freebsd", native, PlatformBSD},
		{"plan9", native, PlatformUnknown},
		{"linux", func() string { return "Linux version 5.15.153.1-microsoft-standard-WSL2" }, PlatformWSL2},
		{"linux", func() string { return "Linux version 4.4.0-19041-Microsoft" }, PlatformWSL1},
	}
	for _, tt := range tests {
		if got := detect(tt.goos, tt.version); got != tt.want {
			t.Errorf("detect(%s) = %s, want %s", tt.goos, got, tt.want)
		}
	}
	t.Setenv("WSL_DISTRO_NAME", "")
	if got := detect("linux", native); got != PlatformLinux {
		t.Errorf("native linux detected as %s", got)
	}
}

func TestPlatformString(t *testing.T) {
	tests := []struct {
		platform Platform
		expected string
	}{
		{PlatformMacOS, "macOS"},
		{PlatformLinux, "Linux"},
		{PlatformBSD, "BSD"},
		{PlatformWSL1, "WSL1"},
		{PlatformWSL2, "WSL2"},
		{PlatformWindows, "Windows"},
		{PlatformUnknown, "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.platform.String(); got != tt.expected {
			t.Errorf("Platform(%s).String() = %s, want %s", tt.platform, got, tt.expected)
		}
	}
}

func TestRunnerName(t *testing.T) {
	want := "pty"
	if runtime.GOOS == "windows" {
		want = "pipe"
	}
	if got := RunnerName(); got != want {
		t.Errorf("RunnerName() = %s, want %s", got, want)
	}
}

func TestMountFsType(t *testing.T) {
	mounts := `/dev/sda1 / ext4 rw,relatime 0 0
C:\134 /mnt/c 9p rw,noatime 0 0
server:/export /mnt/cc nfs4 rw 0 0
user@host: /home/u/remote fuse.sshfs rw 0 0
`
	tests := []struct {
		path string
		want string
	}{
		{"/home/u/.agent-recap/sessions", "ext4"},
		{"/mnt/c/Users/u/.agent-recap", "9p"},
		{"/mnt/c", "9p"},
		{"/mnt/cc/data", "nfs4"},
		{"/mnt/cx", "ext4"},
		{"/home/u/remote/x", "fuse.sshfs"},
	}
	for _, tt := range tests {
		if got := mountFsType(mounts, tt.path); got != tt.want {
			t.Errorf("mountFsType(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestFsnotifyWarning(t *testing.T) {
	for _, fs := range []string{"9p", "nfs", "nfs4", "cifs", "smbfs", "fuse.sshfs"} {
		if fsnotifyWarning(fs) == "" {
			t.Errorf("expected warning for %s", fs)
		}
	}
	for _, fs := range []string{"ext4", "apfs", "btrfs", "tmpfs", ""} {
		if w := fsnotifyWarning(fs); w != "" {
			t.Errorf("unexpected warning for %s: %s", fs, w)
		}
	}
}
