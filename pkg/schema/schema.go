package schema

import "github.com/deniswernert/go-fstab"

// Overlay describes the writable view layered over the read-only squashfs.
type Overlay struct {
	// /mnt/squashfs
	Lower string `yaml:"lower"`
	// /run/overlay/upper
	Upper string `yaml:"upper"`
	// /run/overlay/work
	Work string `yaml:"work"`
	// /mnt/root
	Merged string `yaml:"merged"`
}

// StageError is one entry of the ordered failure trail.
type StageError struct {
	Stage   string `yaml:"stage"`
	Message string `yaml:"message"`
}

// BootReport is written to /run/raven/boot-report.yaml before hand-off so
// later tooling (the installer in particular) can see how the live session
// was assembled.
type BootReport struct {
	SessionID     string       `yaml:"session_id"`
	Version       string       `yaml:"version"`
	EfiBoot       bool         `yaml:"efi_boot"`
	SecureBoot    bool         `yaml:"secure_boot"`
	Device        string       `yaml:"device,omitempty"`
	Image         string       `yaml:"image,omitempty"`
	OverlayActive bool         `yaml:"overlay_active"`
	Stage         string       `yaml:"last_stage"`
	Errors        []StageError `yaml:"errors,omitempty"`
}

type FsTabs []*fstab.Mount
