package tool

import (
	"runtime"

	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
)

// HostEnvironment describes the running host.
func HostEnvironment() v1.Environment {
	return v1.Environment{
		OS:   hostOS(runtime.GOOS),
		Arch: hostArch(runtime.GOARCH),
	}
}

func hostOS(goos string) v1.HostOS {
	switch goos {
	case "darwin":
		return v1.OSMacOS
	default:
		return v1.HostOS(goos)
	}
}

func hostArch(goarch string) v1.HostArch {
	switch goarch {
	case "amd64":
		return v1.ArchX64
	case "386":
		return v1.ArchX86
	default:
		return v1.HostArch(goarch)
	}
}

// ExeName appends the platform executable extension to name.
func ExeName(name string, os v1.HostOS) string {
	if os == v1.OSWindows {
		return name + ".exe"
	}
	return name
}
