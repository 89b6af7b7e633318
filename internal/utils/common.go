package utils

import (
	"os"
	"strings"
)

// GetHostProcCmdline returns the path of the kernel cmdline. Overridable
// via HOST_PROC_CMDLINE for testing.
func GetHostProcCmdline() string {
	proc := os.Getenv("HOST_PROC_CMDLINE")
	if proc == "" {
		return "/proc/cmdline"
	}
	return proc
}

// ReadCMDLineArg returns the values of all cmdline stanzas matching the
// given prefix. Value-less stanzas yield one empty string, so presence can
// be checked with len() > 0.
func ReadCMDLineArg(arg string) []string {
	cmdLine, err := os.ReadFile(GetHostProcCmdline())
	if err != nil {
		return []string{}
	}
	res := []string{}
	for _, f := range strings.Fields(string(cmdLine)) {
		if strings.HasPrefix(f, arg) {
			dat := strings.Split(f, arg)
			res = append(res, dat[1])
		}
	}
	return res
}

// CleanupSlice removes empty or whitespace-only entries.
func CleanupSlice(slice []string) []string {
	var cleaned []string
	for _, item := range slice {
		if strings.TrimSpace(item) == "" {
			continue
		}
		cleaned = append(cleaned, item)
	}
	return cleaned
}

// UniqueSlice removes duplicate entries, keeping first occurrence order.
func UniqueSlice(slice []string) []string {
	keys := make(map[string]bool)
	var unique []string
	for _, entry := range slice {
		if !keys[entry] {
			keys[entry] = true
			unique = append(unique, entry)
		}
	}
	return unique
}

// CreateIfNotExists creates the full path if missing.
func CreateIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModePerm)
	}
	return nil
}

// IsExecutable reports whether path is a regular file with any execute bit
// set.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0
}

// IsRegularFile reports whether path exists and is a regular file.
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
