package sequence

import (
	"os"
	"path/filepath"

	"github.com/gofrs/uuid"
	cnst "github.com/ravenlinux/raven-liveboot/internal/constants"
	internalUtils "github.com/ravenlinux/raven-liveboot/internal/utils"
	"github.com/ravenlinux/raven-liveboot/internal/version"
	"github.com/ravenlinux/raven-liveboot/pkg/schema"
	"gopkg.in/yaml.v3"
)

// WriteReport drops the machine-readable boot report and the live-mode
// sentinel under /run/raven, where the installer picks them up after
// hand-off. Never fatal: a missing report costs diagnostics, not the boot.
func (s *State) WriteReport() StageResult {
	if err := internalUtils.CreateIfNotExists(s.ReportDir); err != nil {
		return SoftFail(cnst.OpWriteReport, err)
	}

	report := schema.BootReport{
		Version:       version.GetVersion(),
		EfiBoot:       internalUtils.EfiBooted(),
		SecureBoot:    internalUtils.SecureBootEnabled(),
		Device:        s.Context.DeviceFound,
		Image:         s.Context.ImageFound,
		OverlayActive: s.Context.OverlayActive,
		Stage:         s.Context.Stage,
		Errors:        s.Context.ErrorTrail,
	}
	if id, err := uuid.NewV4(); err == nil {
		report.SessionID = id.String()
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return SoftFail(cnst.OpWriteReport, err)
	}
	reportFile := filepath.Join(s.ReportDir, cnst.ReportName)
	if err := os.WriteFile(reportFile, data, 0644); err != nil {
		return SoftFail(cnst.OpWriteReport, err)
	}
	if err := os.WriteFile(filepath.Join(s.ReportDir, cnst.Sentinel), []byte("1"), 0644); err != nil {
		return SoftFail(cnst.OpWriteReport, err)
	}

	s.Logger.Info().Str("report", reportFile).Str("session", report.SessionID).Msg("Boot report written")
	return Ok()
}
