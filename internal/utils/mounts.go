package utils

import (
	"strings"

	"github.com/containerd/containerd/mount"
	"github.com/deniswernert/go-fstab"
	"github.com/moby/sys/mountinfo"
)

// MountToFstab turns a mount into an fstab entry. The File field is left
// for the caller to fill with the in-root path.
func MountToFstab(m mount.Mount) *fstab.Mount {
	opts := map[string]string{}
	for _, o := range m.Options {
		if strings.Contains(o, "=") {
			dat := strings.SplitN(o, "=", 2)
			opts[dat[0]] = dat[1]
		} else {
			opts[o] = ""
		}
	}
	return &fstab.Mount{
		Spec:    m.Source,
		VfsType: m.Type,
		MntOps:  opts,
		Freq:    0,
		PassNo:  0,
	}
}

// CleanRootForFstab strips the merged-root staging prefix so entries refer
// to paths as the final system sees them.
func CleanRootForFstab(root, path string) string {
	cleaned := strings.ReplaceAll(path, root, "")
	if cleaned == "" {
		return "/"
	}
	return cleaned
}

// IsMounted reports whether the given path is a mount point.
func IsMounted(path string) bool {
	mounted, err := mountinfo.Mounted(path)
	if err != nil {
		return false
	}
	return mounted
}

// MountSource returns the source device of the mount at path, or an empty
// string if path is not a mount point.
func MountSource(path string) string {
	entries, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(path))
	if err != nil || len(entries) == 0 {
		return ""
	}
	return entries[0].Source
}
