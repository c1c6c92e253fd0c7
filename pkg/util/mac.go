package util

import (
	"fmt"
	"net"
	"strings"
)

// NormalizeMAC parses a 48-bit MAC address and returns it in lowercase
// colon-separated form.
func NormalizeMAC(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid MAC address %q: %w", s, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("invalid MAC address %q: not a 48-bit address", s)
	}
	return hw.String(), nil
}

// MACFromUint64 formats the low 48 bits of v as a MAC address.
func MACFromUint64(v uint64) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
