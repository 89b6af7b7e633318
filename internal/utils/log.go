package utils

import (
	"io"
	"os"

	"github.com/ravenlinux/raven-liveboot/internal/constants"
	"github.com/rs/zerolog"
)

// Log is the shared logger for the whole sequencer. It writes to the
// console and, once /run is available, to a file that survives the switch
// into the merged root.
var Log zerolog.Logger

var logFile *os.File

// SetLogger builds the logger. Debug level comes from the cmdline stanza
// rd.liveboot.debug or the LIVEBOOT_DEBUG environment variable.
func SetLogger() {
	level := zerolog.InfoLevel
	if len(ReadCMDLineArg("rd.liveboot.debug")) > 0 || os.Getenv("LIVEBOOT_DEBUG") != "" {
		level = zerolog.DebugLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}

	_ = os.MkdirAll(constants.RunDir, 0755)
	f, err := os.OpenFile(constants.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		logFile = f
		writers = append(writers, f)
	}

	Log = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger().Level(level)
}

// CloseLogFiles flushes the file writer before the process image is
// replaced.
func CloseLogFiles() {
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
		logFile = nil
	}
}
