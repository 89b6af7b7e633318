package sequence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	internalUtils "github.com/ravenlinux/raven-liveboot/internal/utils"
)

// rescueShells are tried in order when handing the console to a human.
var rescueShells = []string{"/bin/sh", "/bin/bash", "/bin/busybox"}

// Diagnostic renders the BootContext error trail the way the rescue shell
// prints it: which stage failed, with what message, and what the human can
// do about it.
func Diagnostic(ctx *BootContext) string {
	var b strings.Builder
	b.WriteString("\n*** raven-liveboot: boot sequence failed ***\n\n")
	if fatal := ctx.Fatal(); fatal != nil {
		fmt.Fprintf(&b, "Failed stage: %s\n", fatal.Stage)
	} else {
		b.WriteString("The sequence ended without switching root.\n")
	}
	if ctx.DeviceFound != "" {
		fmt.Fprintf(&b, "Boot device:  %s\n", ctx.DeviceFound)
	}
	if ctx.ImageFound != "" {
		fmt.Fprintf(&b, "Root image:   %s\n", ctx.ImageFound)
	}
	if len(ctx.ErrorTrail) > 0 {
		b.WriteString("\nError trail:\n")
		for _, e := range ctx.ErrorTrail {
			fmt.Fprintf(&b, "  [%s] %s\n", e.Stage, e.Message)
		}
	}
	b.WriteString("\nDropping to a rescue shell.\n")
	b.WriteString("Run 'reboot -f' to retry the boot, 'poweroff -f' to shut down.\n\n")
	return b.String()
}

// Rescue prints the diagnostic trail and replaces this process with an
// interactive shell. It never returns: if no shell can be executed the
// live image is broken beyond what a sequencer can fix.
func (s *State) Rescue() {
	msg := Diagnostic(s.Context)
	s.Logger.Error().Msg(msg)
	fmt.Fprint(os.Stderr, msg)
	internalUtils.CloseLogFiles()

	for _, shell := range rescueShells {
		if !internalUtils.IsExecutable(shell) {
			continue
		}
		argv := []string{shell}
		if filepath.Base(shell) == "busybox" {
			argv = []string{shell, "sh"}
		}
		if err := execSyscall(shell, argv, os.Environ()); err != nil {
			s.Logger.Err(err).Str("shell", shell).Msg("executing rescue shell")
		}
	}

	// nothing left to hand the console to, a packaging defect
	s.Logger.Fatal().Msg("no rescue shell available")
}
