package sequence_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	cnst "github.com/ravenlinux/raven-liveboot/internal/constants"
	"github.com/ravenlinux/raven-liveboot/pkg/sequence"
	"github.com/rs/zerolog"
	"github.com/spectrocloud-labs/herd"
)

var _ = Describe("live boot sequence", func() {
	var g *herd.Graph

	BeforeEach(func() {
		g = herd.DAG(herd.EnableInit)
		Expect(g).ToNot(BeNil())
	})

	Context("Register", func() {
		It("builds a strict chain in boot order", func() {
			s := sequence.NewState(zerolog.Nop())

			err := s.Register(g)
			Expect(err).ToNot(HaveOccurred())

			dag := g.Analyze()

			// init plus one layer per stage, one op each: the run is
			// strictly linear
			Expect(len(dag)).To(Equal(12), s.WriteDAG(g))
			for _, layer := range dag {
				Expect(len(layer)).To(Equal(1), s.WriteDAG(g))
			}

			Expect(dag[0][0].Name).To(Equal("init"), s.WriteDAG(g))
			Expect(dag[1][0].Name).To(Equal(cnst.OpMountVirtualFS), s.WriteDAG(g))
			Expect(dag[2][0].Name).To(Equal(cnst.OpLoadDrivers), s.WriteDAG(g))
			Expect(dag[3][0].Name).To(Equal(cnst.OpLocateDevice), s.WriteDAG(g))
			Expect(dag[4][0].Name).To(Equal(cnst.OpMountBootMedium), s.WriteDAG(g))
			Expect(dag[5][0].Name).To(Equal(cnst.OpLocateRootImage), s.WriteDAG(g))
			Expect(dag[6][0].Name).To(Equal(cnst.OpMountRootImage), s.WriteDAG(g))
			Expect(dag[7][0].Name).To(Equal(cnst.OpBuildOverlay), s.WriteDAG(g))
			Expect(dag[8][0].Name).To(Equal(cnst.OpWriteFstab), s.WriteDAG(g))
			Expect(dag[9][0].Name).To(Equal(cnst.OpWriteReport), s.WriteDAG(g))
			Expect(dag[10][0].Name).To(Equal(cnst.OpTransplant), s.WriteDAG(g))
			Expect(dag[11][0].Name).To(Equal(cnst.OpSwitchRoot), s.WriteDAG(g))
		})
	})

	Context("NewState", func() {
		It("carries the build-time defaults", func() {
			s := sequence.NewState(zerolog.Nop())
			Expect(s.Label).To(Equal(cnst.LiveLabel))
			Expect(s.MediumDir).To(Equal(cnst.MediumMountPoint))
			Expect(s.SquashDir).To(Equal(cnst.SquashMountPoint))
			Expect(s.Rootdir).To(Equal(cnst.MergedMountPoint))
			Expect(s.OverlaySize).To(Equal(cnst.DefaultOverlaySize))
			Expect(s.DeviceCandidates).ToNot(BeEmpty())
			Expect(s.SearchPaths).ToNot(BeEmpty())
			Expect(s.InitCandidates).ToNot(BeEmpty())
			Expect(s.Context).ToNot(BeNil())
		})
	})

	Context("StageResult", func() {
		It("classifies outcomes", func() {
			ok := sequence.Ok()
			Expect(ok.IsOk()).To(BeTrue())
			Expect(ok.IsSoft()).To(BeFalse())
			Expect(ok.IsHard()).To(BeFalse())

			soft := sequence.SoftFail(cnst.OpWriteFstab, errors.New("read-only root"))
			Expect(soft.IsOk()).To(BeFalse())
			Expect(soft.IsSoft()).To(BeTrue())
			Expect(soft.IsHard()).To(BeFalse())

			hard := sequence.HardFail(cnst.OpLocateDevice, errors.New("no device"))
			Expect(hard.IsOk()).To(BeFalse())
			Expect(hard.IsSoft()).To(BeFalse())
			Expect(hard.IsHard()).To(BeTrue())
		})
	})

	Context("BootContext", func() {
		It("accumulates the error trail in order", func() {
			ctx := sequence.NewBootContext()
			ctx.Record(sequence.Ok())
			Expect(ctx.ErrorTrail).To(BeEmpty())

			ctx.Record(sequence.SoftFail(cnst.OpBuildOverlay, errors.New("no overlay")))
			ctx.Record(sequence.SoftFail(cnst.OpWriteFstab, errors.New("no etc")))
			Expect(len(ctx.ErrorTrail)).To(Equal(2))
			Expect(ctx.ErrorTrail[0].Stage).To(Equal(cnst.OpBuildOverlay))
			Expect(ctx.ErrorTrail[1].Stage).To(Equal(cnst.OpWriteFstab))
			Expect(ctx.Fatal()).To(BeNil())
			Expect(ctx.FatalErr()).ToNot(HaveOccurred())
		})

		It("latches the first hard failure only", func() {
			ctx := sequence.NewBootContext()
			ctx.Record(sequence.HardFail(cnst.OpLocateDevice, errors.New("no device")))
			ctx.Record(sequence.HardFail(cnst.OpSwitchRoot, errors.New("no init")))

			Expect(ctx.Fatal()).ToNot(BeNil())
			Expect(ctx.Fatal().Stage).To(Equal(cnst.OpLocateDevice))
			Expect(ctx.FatalErr()).To(HaveOccurred())
			Expect(ctx.FatalErr().Error()).To(ContainSubstring(cnst.OpLocateDevice))
			Expect(len(ctx.ErrorTrail)).To(Equal(2))
		})
	})

	Context("Diagnostic", func() {
		It("names the failed stage and prints the trail", func() {
			ctx := sequence.NewBootContext()
			ctx.Enter(cnst.OpLocateDevice)
			ctx.DeviceFound = ""
			ctx.Record(sequence.HardFail(cnst.OpLocateDevice, errors.New("no device labelled RAVEN_LIVE")))

			out := sequence.Diagnostic(ctx)
			Expect(out).To(ContainSubstring("Failed stage: " + cnst.OpLocateDevice))
			Expect(out).To(ContainSubstring("[" + cnst.OpLocateDevice + "] no device labelled RAVEN_LIVE"))
			Expect(out).To(ContainSubstring("rescue shell"))
			Expect(out).To(ContainSubstring("reboot -f"))
		})

		It("reports discovered facts when the failure comes later", func() {
			ctx := sequence.NewBootContext()
			ctx.DeviceFound = "/dev/sr0"
			ctx.ImageFound = "/mnt/cdrom/raven/filesystem.squashfs"
			ctx.Record(sequence.HardFail(cnst.OpSwitchRoot, errors.New("no executable init")))

			out := sequence.Diagnostic(ctx)
			Expect(out).To(ContainSubstring("/dev/sr0"))
			Expect(out).To(ContainSubstring("/mnt/cdrom/raven/filesystem.squashfs"))
			Expect(out).To(ContainSubstring("Failed stage: " + cnst.OpSwitchRoot))
		})

		It("explains a sequence that ended without a hard failure", func() {
			out := sequence.Diagnostic(sequence.NewBootContext())
			Expect(out).To(ContainSubstring("without switching root"))
		})
	})
})
