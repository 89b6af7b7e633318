package sequence

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	cnst "github.com/ravenlinux/raven-liveboot/internal/constants"
	internalUtils "github.com/ravenlinux/raven-liveboot/internal/utils"
	"github.com/ravenlinux/raven-liveboot/pkg/schema"
	"github.com/rs/zerolog"
	"github.com/spectrocloud-labs/herd"
)

// State carries the build-time configuration and the mutable BootContext
// through the stages. One instance lives for the whole boot attempt.
type State struct {
	Logger zerolog.Logger

	MediumDir string // where the boot medium is mounted, e.g. /mnt/cdrom
	SquashDir string // where the squashfs is mounted, e.g. /mnt/squashfs
	Rootdir   string // the merged writable view, e.g. /mnt/root

	Label            string   // volume label to search for, e.g. RAVEN_LIVE
	ByLabelDir       string   // /dev/disk/by-label, overridable for tests
	DeviceCandidates []string // fallback device paths, in priority order
	SearchPaths      []string // image paths under MediumDir, in priority order
	InitCandidates   []string // init paths inside Rootdir, in priority order
	InitArgs         []string // passed through to the final init

	OverlayDir  string        // tmpfs base for the overlay upper/work pair
	OverlaySize string        // tmpfs size backing OverlayDir
	RebindPoint string        // where the boot medium is rebound for the installer
	ReportDir   string        // where the boot report and sentinel land
	SettleDelay time.Duration // one-shot wait before device discovery

	Context *BootContext

	fstabs schema.FsTabs
}

// NewState builds a State from the build-time constants, applying any
// overrides from the baked-in config file.
func NewState(logger zerolog.Logger) *State {
	s := &State{
		Logger:           logger,
		MediumDir:        cnst.MediumMountPoint,
		SquashDir:        cnst.SquashMountPoint,
		Rootdir:          cnst.MergedMountPoint,
		Label:            cnst.LiveLabel,
		ByLabelDir:       cnst.ByLabelDir,
		DeviceCandidates: cnst.DeviceCandidates(),
		SearchPaths:      cnst.ImageSearchPaths(),
		InitCandidates:   cnst.InitCandidates(),
		OverlayDir:       cnst.OverlayBase,
		OverlaySize:      cnst.DefaultOverlaySize,
		RebindPoint:      cnst.MediumRebindPoint,
		ReportDir:        cnst.RunDir,
		SettleDelay:      cnst.DeviceSettleDelay,
		Context:          NewBootContext(),
	}
	s.applyConfig(cnst.ConfigFile)
	return s
}

// applyConfig overrides the defaults from an optional env file baked into
// the initramfs at build time.
func (s *State) applyConfig(file string) {
	env, err := internalUtils.ReadEnv(file)
	if err != nil {
		s.Logger.Err(err).Str("file", file).Msg("Reading config file")
		return
	}
	if v := env["LIVE_LABEL"]; v != "" {
		s.Label = v
	}
	if v := env["OVERLAY_SIZE"]; v != "" {
		s.OverlaySize = v
	}
	if v := env["DEVICE_CANDIDATES"]; v != "" {
		s.DeviceCandidates = internalUtils.CleanupSlice(strings.Split(v, " "))
	}
	if v := env["IMAGE_PATHS"]; v != "" {
		s.SearchPaths = internalUtils.CleanupSlice(strings.Split(v, " "))
	}
	if v := env["INIT_CANDIDATES"]; v != "" {
		s.InitCandidates = internalUtils.CleanupSlice(strings.Split(v, " "))
	}
}

func (s *State) path(p ...string) string {
	return filepath.Join(append([]string{s.Rootdir}, p...)...)
}

// step wraps a stage function into a graph callback. Once a hard failure
// is latched in the BootContext, later stage bodies are not executed and
// the latched error is surfaced instead, so nothing runs past a hard
// failure.
func (s *State) step(stage string, fn func() StageResult) func(context.Context) error {
	return func(_ context.Context) error {
		if err := s.Context.FatalErr(); err != nil {
			return err
		}
		s.Context.Enter(stage)
		res := fn()
		res.Stage = stage
		s.Context.Record(res)
		switch {
		case res.IsHard():
			s.Logger.Error().Str("stage", stage).Err(res.Err).Msg("Stage failed")
			return res.Err
		case res.IsSoft():
			s.Logger.Warn().Str("stage", stage).Err(res.Err).Msg("Stage degraded")
		default:
			s.Logger.Debug().Str("stage", stage).Msg("Stage done")
		}
		return nil
	}
}

// WriteDAG writes the registered graph in layer order.
func (s *State) WriteDAG(g *herd.Graph) (out string) {
	for i, layer := range g.Analyze() {
		out += fmt.Sprintf("%d.\n", i+1)
		for _, op := range layer {
			if op.Error != nil {
				out += fmt.Sprintf(" <%s> (error: %s)\n", op.Name, op.Error.Error())
			} else {
				out += fmt.Sprintf(" <%s>\n", op.Name)
			}
		}
	}
	return
}

// LogIfError will log if there is an error with the given context as message
// Context can be empty
func (s *State) LogIfError(e error, msgContext string) {
	if e != nil {
		s.Logger.Err(e).Msg(msgContext)
	}
}

// LogIfErrorAndReturn will log if there is an error with the given context as message
// Context can be empty
// Will also return the error
func (s *State) LogIfErrorAndReturn(e error, msgContext string) error {
	if e != nil {
		s.Logger.Err(e).Msg(msgContext)
	}
	return e
}
