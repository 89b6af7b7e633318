package utils

import (
	"os"
	"strings"

	"github.com/foxboron/go-uefi/efi"
)

const loaderDevicePartUUIDVar = "/sys/firmware/efi/efivars/LoaderDevicePartUUID-4a67b082-0a4c-41cf-b6c7-440b29bb8c4f"

// EfiBooted reports whether the firmware handed us off via UEFI.
func EfiBooted() bool {
	_, err := os.Stat("/sys/firmware/efi")
	return err == nil
}

// SecureBootEnabled reports the firmware Secure Boot state. Always false
// on BIOS boots.
func SecureBootEnabled() bool {
	if !EfiBooted() {
		return false
	}
	return efi.GetSecureBoot()
}

// BootPartitionHint returns the partition UUID the boot loader recorded in
// the LoaderDevicePartUUID variable, or an empty string. The value is an
// UTF-16LE string prefixed with a 4 byte attribute word.
func BootPartitionHint() string {
	raw, err := os.ReadFile(loaderDevicePartUUIDVar)
	if err != nil || len(raw) <= 4 {
		return ""
	}
	var sb strings.Builder
	for i := 4; i+1 < len(raw); i += 2 {
		c := uint16(raw[i]) | uint16(raw[i+1])<<8
		if c == 0 {
			break
		}
		sb.WriteRune(rune(c))
	}
	return strings.ToLower(strings.TrimSpace(sb.String()))
}
