package sequence

import (
	"fmt"
	"os"
	"strings"

	"github.com/containerd/containerd/mount"
	"github.com/deniswernert/go-fstab"
	cnst "github.com/ravenlinux/raven-liveboot/internal/constants"
	internalUtils "github.com/ravenlinux/raven-liveboot/internal/utils"
	"github.com/ravenlinux/raven-liveboot/pkg/schema"
)

// Mount primitives, swappable in tests.
var (
	mountAll  = mount.All
	isMounted = internalUtils.IsMounted
)

// MountSpec describes one mount the sequence needs. Mandatory specs abort
// the sequence when the mount fails, optional ones are logged and skipped.
type MountSpec struct {
	Source    string
	Target    string
	FSType    string
	Options   []string
	Mandatory bool
}

type mountOperation struct {
	FstabEntry      fstab.Mount
	MountOption     mount.Mount
	Target          string
	PrepareCallback func() error
}

func (m mountOperation) run() error {
	if m.PrepareCallback != nil {
		if err := m.PrepareCallback(); err != nil {
			internalUtils.Log.Err(err).Msg("executing mount callback")
			return err
		}
	}
	if isMounted(m.Target) {
		internalUtils.Log.Debug().Str("where", m.Target).Msg("Already mounted")
		return cnst.ErrAlreadyMounted
	}
	internalUtils.Log.Debug().Str("what", m.MountOption.Source).Str("where", m.Target).Str("type", m.MountOption.Type).Strs("options", m.MountOption.Options).Msg("mount ready")
	return mountAll([]mount.Mount{m.MountOption}, m.Target)
}

// mountOp builds a mountOperation out of a MountSpec, creating the target
// directory first.
func mountOp(spec MountSpec) mountOperation {
	m := mount.Mount{
		Type:    spec.FSType,
		Source:  spec.Source,
		Options: spec.Options,
	}
	entry := internalUtils.MountToFstab(m)
	entry.File = spec.Target
	return mountOperation{
		MountOption: m,
		FstabEntry:  *entry,
		Target:      spec.Target,
		PrepareCallback: func() error {
			return internalUtils.CreateIfNotExists(spec.Target)
		},
	}
}

// overlayMount builds the writable view: tmpfs-backed upper and work
// directories layered over the read-only lower.
func overlayMount(overlay schema.Overlay) mountOperation {
	m := mount.Mount{
		Type:   "overlay",
		Source: "overlay",
		Options: []string{
			fmt.Sprintf("lowerdir=%s", overlay.Lower),
			fmt.Sprintf("upperdir=%s", overlay.Upper),
			fmt.Sprintf("workdir=%s", overlay.Work),
		},
	}
	entry := internalUtils.MountToFstab(m)
	entry.File = overlay.Merged
	return mountOperation{
		MountOption: m,
		FstabEntry:  *entry,
		Target:      overlay.Merged,
		PrepareCallback: func() error {
			for _, dir := range []string{overlay.Upper, overlay.Work, overlay.Merged} {
				if err := os.MkdirAll(dir, os.ModePerm); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// bindMount is the degraded replacement for a failed overlay: a read-only
// bind of the lower directory onto the merged path.
func bindMount(lower, merged string) mountOperation {
	m := mount.Mount{
		Type:    "none",
		Source:  lower,
		Options: []string{"ro", "bind"},
	}
	entry := internalUtils.MountToFstab(m)
	entry.File = merged
	return mountOperation{
		MountOption: m,
		FstabEntry:  *entry,
		Target:      merged,
		PrepareCallback: func() error {
			return internalUtils.CreateIfNotExists(merged)
		},
	}
}

// tmpfsMount backs the overlay upper/work pair. The size option keeps a
// runaway live session from eating all memory.
func tmpfsMount(base, size string) mountOperation {
	m := mount.Mount{
		Type:    "tmpfs",
		Source:  "tmpfs",
		Options: []string{fmt.Sprintf("size=%s", size)},
	}
	entry := internalUtils.MountToFstab(m)
	entry.File = base
	return mountOperation{
		MountOption: m,
		FstabEntry:  *entry,
		Target:      base,
		PrepareCallback: func() error {
			return os.MkdirAll(base, 0700)
		},
	}
}

// diskFSTypes returns the disk-backed filesystem types the running kernel
// knows about, in /proc/filesystems order. Used when the expected medium
// type fails to mount and we fall back to auto-detection.
func diskFSTypes() []string {
	data, err := os.ReadFile("/proc/filesystems")
	if err != nil {
		return []string{"udf", "vfat", "ext4"}
	}
	var types []string
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 1 {
			// no "nodev" prefix, so a disk-backed filesystem
			types = append(types, fields[0])
		}
	}
	return types
}

// listDir returns the names of the entries under dir, for the diagnostic
// attached to a failed image search.
func listDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names
}
