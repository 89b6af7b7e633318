package constants

import (
	"errors"
	"time"
)

// Error taxonomy for the boot sequence. Hard errors route to the rescue
// shell, soft ones are recorded in the boot context and the sequence
// continues.
var (
	ErrAlreadyMounted       = errors.New("already mounted")
	ErrMandatoryMountFailed = errors.New("mandatory mount failed")
	ErrDeviceNotFound       = errors.New("boot device not found")
	ErrImageNotFound        = errors.New("root image not found")
	ErrOverlayUnavailable   = errors.New("overlay filesystem unavailable")
	ErrTransplantFailed     = errors.New("mount transplant failed")
	ErrSwitchRootFailed     = errors.New("switch root failed")
)

// Stage op names, also the stage tags printed on failure.
const (
	OpMountVirtualFS  = "mount-virtual-fs"
	OpLoadDrivers     = "load-drivers"
	OpLocateDevice    = "locate-device"
	OpMountBootMedium = "mount-boot-medium"
	OpLocateRootImage = "locate-root-image"
	OpMountRootImage  = "mount-root-image"
	OpBuildOverlay    = "build-overlay"
	OpTransplant      = "transplant-mounts"
	OpWriteFstab      = "write-fstab"
	OpWriteReport     = "write-report"
	OpSwitchRoot      = "switch-root"
)

// Staging mount points. These are part of the boot-time filesystem layout
// contract: the installer and other live tooling reference them by
// convention, so they must stay stable.
const (
	MediumMountPoint  = "/mnt/cdrom"
	SquashMountPoint  = "/mnt/squashfs"
	MergedMountPoint  = "/mnt/root"
	OverlayBase       = "/run/overlay"
	MediumRebindPoint = "/run/initramfs/medium"

	RunDir     = "/run/raven"
	ReportName = "boot-report.yaml"
	LogFile    = "/run/raven/liveboot.log"
	Sentinel   = "live_mode"

	// ConfigFile is baked into the initramfs at build time and may
	// override the defaults below.
	ConfigFile = "/etc/raven-live.conf"
)

const (
	// LiveLabel is the volume label the ISO build stamps on the medium.
	LiveLabel = "RAVEN_LIVE"

	// DefaultOverlaySize is the tmpfs size backing the overlay upper/work
	// directories.
	DefaultOverlaySize = "50%"

	// DeviceSettleDelay is the one-shot wait before probing devices, to
	// tolerate slow-enumerating optical drives. Not a retry loop.
	DeviceSettleDelay = 3 * time.Second

	ByLabelDir = "/dev/disk/by-label"
)

// DeviceCandidates are checked, in order, when no device carries the live
// label. Conventional optical drives first, then removable disks.
func DeviceCandidates() []string {
	return []string{
		"/dev/sr0",
		"/dev/sr1",
		"/dev/cdrom",
		"/dev/sda",
		"/dev/sdb",
		"/dev/sdc",
		"/dev/vda",
		"/dev/vdb",
	}
}

// ImageSearchPaths are checked, in order, under the mounted boot medium.
// First existing regular file wins.
func ImageSearchPaths() []string {
	return []string{
		"/raven/filesystem.squashfs",
		"/LiveOS/squashfs.img",
		"/live/filesystem.squashfs",
	}
}

// InitCandidates are tried, in order, inside the merged root. The trailing
// shell is a last-resort init, not the rescue path.
func InitCandidates() []string {
	return []string{
		"/sbin/raven-init",
		"/init",
		"/sbin/init",
		"/bin/init",
		"/bin/sh",
	}
}

// BootDrivers are always probed before device discovery. Loading them is
// best effort: on most kernels they are built in already.
func BootDrivers() []string {
	return []string{
		"loop",
		"squashfs",
		"overlay",
		"isofs",
		"sr_mod",
		"cdrom",
		"usb_storage",
		"sd_mod",
	}
}
