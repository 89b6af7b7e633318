package sequence

import (
	cnst "github.com/ravenlinux/raven-liveboot/internal/constants"
	"github.com/spectrocloud-labs/herd"
)

// Register adds the live-boot stages to the graph as a strict chain: each
// op depends on the previous one, so the run is linear and forward-only.
// Ordering is the correctness guarantee here: every stage observes the
// mount state left by its predecessor.
func (s *State) Register(g *herd.Graph) error {
	stages := []struct {
		name string
		fn   func() StageResult
	}{
		{cnst.OpMountVirtualFS, s.MountVirtualFS},
		{cnst.OpLoadDrivers, s.LoadDrivers},
		{cnst.OpLocateDevice, s.LocateDevice},
		{cnst.OpMountBootMedium, s.MountBootMedium},
		{cnst.OpLocateRootImage, s.LocateRootImage},
		{cnst.OpMountRootImage, s.MountRootImage},
		{cnst.OpBuildOverlay, s.BuildOverlay},
		{cnst.OpWriteFstab, s.WriteFstab},
		{cnst.OpWriteReport, s.WriteReport},
		{cnst.OpTransplant, s.TransplantMounts},
		{cnst.OpSwitchRoot, s.SwitchRoot},
	}

	var prev string
	for _, stage := range stages {
		opts := []herd.OpOption{herd.WithCallback(s.step(stage.name, stage.fn))}
		if prev != "" {
			opts = append(opts, herd.WithDeps(prev))
		}
		if err := g.Add(stage.name, opts...); err != nil {
			return err
		}
		prev = stage.name
	}
	return nil
}
