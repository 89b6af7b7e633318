package sequence

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jaypipes/ghw"
	"github.com/mudler/go-kdetect"
	cnst "github.com/ravenlinux/raven-liveboot/internal/constants"
	internalUtils "github.com/ravenlinux/raven-liveboot/internal/utils"
	"github.com/ravenlinux/raven-liveboot/pkg/schema"
	"golang.org/x/sys/unix"
)

// Seams for the probes and syscalls the stage bodies depend on, swappable
// in tests.
var (
	ghwBlock           = ghw.Block
	probeKernelModules = kdetect.ProbeKernelModules
	bootPartitionHint  = internalUtils.BootPartitionHint
	isBlockDevice      = func(path string) bool {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		return info.Mode()&os.ModeDevice != 0 && info.Mode()&os.ModeCharDevice == 0
	}
	moveMount = func(src, target string) error {
		return unix.Mount(src, target, "", unix.MS_MOVE, "")
	}
	bindMountSyscall = func(src, target string) error {
		return unix.Mount(src, target, "", unix.MS_BIND, "")
	}
	execSyscall = unix.Exec
	setLogger   = internalUtils.SetLogger
)

// MountVirtualFS mounts the pseudo filesystems every later stage assumes:
// proc, sysfs, a device filesystem, devpts, shm and a tmpfs on /run. All
// of them are mandatory. devtmpfs degrades to a plain tmpfs on kernels
// built without it.
func (s *State) MountVirtualFS() StageResult {
	specs := []MountSpec{
		{Source: "proc", Target: "/proc", FSType: "proc", Options: []string{"nosuid", "noexec", "nodev"}, Mandatory: true},
		{Source: "sysfs", Target: "/sys", FSType: "sysfs", Options: []string{"nosuid", "noexec", "nodev"}, Mandatory: true},
		{Source: "devtmpfs", Target: "/dev", FSType: "devtmpfs", Options: []string{"nosuid", "mode=0755"}, Mandatory: true},
		{Source: "tmpfs", Target: "/run", FSType: "tmpfs", Options: []string{"nosuid", "nodev", "mode=0755"}, Mandatory: true},
		{Source: "devpts", Target: "/dev/pts", FSType: "devpts", Options: []string{"gid=5", "mode=0620"}, Mandatory: true},
		{Source: "tmpfs", Target: "/dev/shm", FSType: "tmpfs", Options: []string{"nosuid", "nodev", "mode=1777"}, Mandatory: true},
	}

	for _, spec := range specs {
		err := mountOp(spec).run()
		if err != nil && spec.FSType == "devtmpfs" {
			// kernel without devtmpfs, fall back to a plain tmpfs and
			// let the driver stage populate it via mdev/udev later
			s.Logger.Warn().Err(err).Msg("devtmpfs unavailable, falling back to tmpfs")
			spec.FSType = "tmpfs"
			spec.Source = "tmpfs"
			err = mountOp(spec).run()
		}
		if err != nil && !errors.Is(err, cnst.ErrAlreadyMounted) {
			return HardFail(cnst.OpMountVirtualFS,
				fmt.Errorf("%w: %s on %s: %v", cnst.ErrMandatoryMountFailed, spec.FSType, spec.Target, err))
		}
	}

	// /run exists now, reopen the logger so the file half of it lands on
	// the fresh tmpfs instead of the shadowed rootfs
	setLogger()
	s.Logger = internalUtils.Log

	return Ok()
}

// LoadDrivers best-effort probes and loads the block/filesystem drivers
// the discovery stages need. Most kernels have these built in, so every
// failure here is logged at debug and ignored.
func (s *State) LoadDrivers() StageResult {
	drivers, err := probeKernelModules("")
	if err != nil {
		s.Logger.Debug().Err(err).Msg("probing kernel modules")
	}
	drivers = append(drivers, cnst.BootDrivers()...)
	drivers = internalUtils.UniqueSlice(internalUtils.CleanupSlice(drivers))
	for _, driver := range drivers {
		cmd := exec.Command("modprobe", driver)
		cmd.Env = append(os.Environ(), "PATH=/usr/sbin:/usr/bin:/sbin:/bin")
		if out, err := cmd.CombinedOutput(); err != nil {
			s.Logger.Debug().Err(err).Str("driver", driver).Str("out", string(out)).Msg("modprobe")
		}
	}
	return Ok()
}

// LocateDevice finds the boot medium. The label pass runs in full, across
// every source of label information, before the existence-only fallback
// pass starts, so a labelled device always wins over a merely-present one.
// A fixed settle sleep precedes the probing to give slow optical drives a
// chance to enumerate.
func (s *State) LocateDevice() StageResult {
	time.Sleep(s.SettleDelay)

	if dev := s.labelPass(); dev != "" {
		s.Logger.Info().Str("device", dev).Str("label", s.Label).Msg("Boot medium found by label")
		s.Context.DeviceFound = dev
		return Ok()
	}

	for _, candidate := range s.DeviceCandidates {
		if isBlockDevice(candidate) {
			s.Logger.Info().Str("device", candidate).Str("label", s.Label).Msg("Label not found, using first present candidate")
			s.Context.DeviceFound = candidate
			return Ok()
		}
	}

	return HardFail(cnst.OpLocateDevice,
		fmt.Errorf("%w: no device labelled %q and none of %v present", cnst.ErrDeviceNotFound, s.Label, s.DeviceCandidates))
}

// labelPass checks every label source in fixed priority order: the
// by-label symlink the kernel/udev maintains, the partition UUID hint a
// UEFI boot loader may have left behind, then a full block-device walk.
func (s *State) labelPass() string {
	byLabel := filepath.Join(s.ByLabelDir, s.Label)
	if _, err := os.Stat(byLabel); err == nil {
		return byLabel
	}

	if hint := bootPartitionHint(); hint != "" {
		byPartUUID := filepath.Join("/dev/disk/by-partuuid", hint)
		if _, err := os.Stat(byPartUUID); err == nil {
			s.Logger.Debug().Str("partuuid", hint).Msg("Using boot loader device hint")
			return byPartUUID
		}
	}

	block, err := ghwBlock()
	if err != nil {
		s.Logger.Debug().Err(err).Msg("block device enumeration")
		return ""
	}
	for _, disk := range block.Disks {
		for _, part := range disk.Partitions {
			if part.FilesystemLabel == s.Label || part.Label == s.Label {
				return filepath.Join("/dev", part.Name)
			}
		}
	}
	return ""
}

// MountBootMedium mounts the located device read-only on the staging
// point, expecting the ISO volume format first and falling back to every
// disk filesystem type the kernel knows.
func (s *State) MountBootMedium() StageResult {
	device := s.Context.DeviceFound

	tried := []string{"iso9660"}
	err := mountOp(MountSpec{Source: device, Target: s.MediumDir, FSType: "iso9660", Options: []string{"ro"}, Mandatory: true}).run()
	if err != nil && !errors.Is(err, cnst.ErrAlreadyMounted) {
		for _, fsType := range diskFSTypes() {
			if fsType == "iso9660" {
				continue
			}
			tried = append(tried, fsType)
			err = mountOp(MountSpec{Source: device, Target: s.MediumDir, FSType: fsType, Options: []string{"ro"}, Mandatory: true}).run()
			if err == nil || errors.Is(err, cnst.ErrAlreadyMounted) {
				s.Logger.Info().Str("device", device).Str("type", fsType).Msg("Boot medium mounted with detected type")
				break
			}
		}
	}
	if err != nil && !errors.Is(err, cnst.ErrAlreadyMounted) {
		return HardFail(cnst.OpMountBootMedium,
			fmt.Errorf("%w: %s on %s (tried types %v): %v", cnst.ErrMandatoryMountFailed, device, s.MediumDir, tried, err))
	}
	return Ok()
}

// LocateRootImage walks the ordered image search paths under the mounted
// medium; first regular file wins. The failure diagnostic carries a
// listing of the medium so a human can see what the build actually put
// there.
func (s *State) LocateRootImage() StageResult {
	for _, p := range s.SearchPaths {
		full := filepath.Join(s.MediumDir, p)
		if internalUtils.IsRegularFile(full) {
			s.Logger.Info().Str("image", full).Msg("Root image found")
			s.Context.ImageFound = full
			return Ok()
		}
	}
	return HardFail(cnst.OpLocateRootImage,
		fmt.Errorf("%w: none of %v under %s, medium contains %v", cnst.ErrImageNotFound, s.SearchPaths, s.MediumDir, listDir(s.MediumDir)))
}

// MountRootImage loop mounts the compressed root read-only on the second
// staging point.
func (s *State) MountRootImage() StageResult {
	err := mountOp(MountSpec{
		Source:    s.Context.ImageFound,
		Target:    s.SquashDir,
		FSType:    "squashfs",
		Options:   []string{"ro", "loop"},
		Mandatory: true,
	}).run()
	if err != nil && !errors.Is(err, cnst.ErrAlreadyMounted) {
		return HardFail(cnst.OpMountRootImage,
			fmt.Errorf("%w: %s on %s: %v", cnst.ErrMandatoryMountFailed, s.Context.ImageFound, s.SquashDir, err))
	}
	return Ok()
}

// BuildOverlay assembles the writable view: a tmpfs-backed upper/work
// pair layered over the squashfs. If the overlay cannot be mounted the
// stage degrades to a read-only bind of the squashfs, which still yields
// a bootable (if read-only) session; only a failure to produce any merged
// root at all is fatal.
func (s *State) BuildOverlay() StageResult {
	overlay := schema.Overlay{
		Lower:  s.SquashDir,
		Upper:  filepath.Join(s.OverlayDir, "upper"),
		Work:   filepath.Join(s.OverlayDir, "work"),
		Merged: s.Rootdir,
	}

	var overlayErr error
	baseOp := tmpfsMount(s.OverlayDir, s.OverlaySize)
	overlayErr = baseOp.run()
	if overlayErr == nil || errors.Is(overlayErr, cnst.ErrAlreadyMounted) {
		op := overlayMount(overlay)
		overlayErr = op.run()
		if overlayErr == nil || errors.Is(overlayErr, cnst.ErrAlreadyMounted) {
			s.Context.OverlayActive = true
			s.fstabs = append(s.fstabs, &baseOp.FstabEntry, &op.FstabEntry)
			return Ok()
		}
	}

	s.Logger.Warn().Err(overlayErr).Msg("Overlay unavailable, degrading to read-only root")
	op := bindMount(s.SquashDir, s.Rootdir)
	if err := op.run(); err != nil && !errors.Is(err, cnst.ErrAlreadyMounted) {
		return HardFail(cnst.OpBuildOverlay,
			fmt.Errorf("%w: bind %s on %s: %v", cnst.ErrMandatoryMountFailed, s.SquashDir, s.Rootdir, err))
	}
	s.Context.OverlayActive = false
	s.fstabs = append(s.fstabs, &op.FstabEntry)
	return SoftFail(cnst.OpBuildOverlay,
		fmt.Errorf("%w: %v", cnst.ErrOverlayUnavailable, overlayErr))
}

// WriteFstab writes the accumulated entries into the merged root. Entries
// record their staging targets, so the mount point column is rewritten to
// the path the final system sees. On a degraded read-only session this
// cannot succeed and is skipped with a soft failure.
func (s *State) WriteFstab() StageResult {
	fstabFile := s.path("/etc/fstab")
	f, err := os.OpenFile(fstabFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return SoftFail(cnst.OpWriteFstab, err)
	}
	defer f.Close()
	for _, fst := range s.fstabs {
		fst.File = internalUtils.CleanRootForFstab(s.Rootdir, fst.File)
		s.Logger.Debug().Str("what", fst.String()).Msg("Adding line to fstab")
		if _, err := f.WriteString(fmt.Sprintf("%s\n", fst.String())); err != nil {
			return SoftFail(cnst.OpWriteFstab, err)
		}
	}
	return Ok()
}

// TransplantMounts relocates the virtual filesystems into the merged root
// with move mounts, so they keep their mount identity and open descriptors
// survive. The medium is rebound under /run first so the installed-system
// tooling can still read the install media, then /dev, /sys and /run move,
// and /proc goes last because the move checks themselves need it.
func (s *State) TransplantMounts() StageResult {
	var soft *multierror.Error

	if err := internalUtils.CreateIfNotExists(s.RebindPoint); err == nil {
		if err := bindMountSyscall(s.MediumDir, s.RebindPoint); err != nil {
			s.Logger.Warn().Err(err).Str("where", s.RebindPoint).Msg("Rebinding boot medium")
			soft = multierror.Append(soft, fmt.Errorf("rebind medium: %w", err))
		}
	} else {
		soft = multierror.Append(soft, fmt.Errorf("rebind medium: %w", err))
	}

	for _, m := range []string{"/dev", "/sys", "/run", "/proc"} {
		target := s.path(m)
		if err := internalUtils.CreateIfNotExists(target); err != nil {
			return HardFail(cnst.OpTransplant, fmt.Errorf("%w: creating %s: %v", cnst.ErrTransplantFailed, target, err))
		}
		source := internalUtils.MountSource(m)
		if err := moveMount(m, target); err != nil {
			if m == "/run" {
				// losing /run costs the boot report, not the boot
				s.Logger.Warn().Err(err).Msg("Moving /run")
				soft = multierror.Append(soft, fmt.Errorf("move /run: %w", err))
				continue
			}
			return HardFail(cnst.OpTransplant, fmt.Errorf("%w: moving %s to %s: %v", cnst.ErrTransplantFailed, m, target, err))
		}
		s.Logger.Debug().Str("what", m).Str("where", target).Str("source", source).Msg("Mount moved")
	}

	if err := soft.ErrorOrNil(); err != nil {
		return SoftFail(cnst.OpTransplant, err)
	}
	return Ok()
}

// firstInitCandidate returns the first candidate that exists and is
// executable inside the merged root, or an empty string. Strict list
// order: the walk stops at the first match.
func (s *State) firstInitCandidate() string {
	for _, candidate := range s.InitCandidates {
		if internalUtils.IsExecutable(s.path(candidate)) {
			return candidate
		}
	}
	return ""
}

// SwitchRoot walks the init candidates inside the merged root and replaces
// this process with the first executable one, after making the merged root
// the real root. Does not return on success.
func (s *State) SwitchRoot() StageResult {
	target := s.firstInitCandidate()
	if target == "" {
		return HardFail(cnst.OpSwitchRoot,
			fmt.Errorf("%w: no executable init among %v", cnst.ErrSwitchRootFailed, s.InitCandidates))
	}

	s.Logger.Info().Str("init", target).Str("root", s.Rootdir).Msg("Switching root")
	internalUtils.CloseLogFiles()

	// busybox switch_root: make the merged root the real root, then exec
	if err := unix.Chdir(s.Rootdir); err != nil {
		return HardFail(cnst.OpSwitchRoot, fmt.Errorf("%w: chdir %s: %v", cnst.ErrSwitchRootFailed, s.Rootdir, err))
	}
	if err := moveMount(".", "/"); err != nil {
		return HardFail(cnst.OpSwitchRoot, fmt.Errorf("%w: moving root: %v", cnst.ErrSwitchRootFailed, err))
	}
	if err := unix.Chroot("."); err != nil {
		return HardFail(cnst.OpSwitchRoot, fmt.Errorf("%w: chroot: %v", cnst.ErrSwitchRootFailed, err))
	}
	if err := unix.Chdir("/"); err != nil {
		return HardFail(cnst.OpSwitchRoot, fmt.Errorf("%w: chdir /: %v", cnst.ErrSwitchRootFailed, err))
	}

	argv := append([]string{target}, s.InitArgs...)
	err := execSyscall(target, argv, os.Environ())
	return HardFail(cnst.OpSwitchRoot,
		fmt.Errorf("%w: exec %s: %v", cnst.ErrSwitchRootFailed, target, err))
}
