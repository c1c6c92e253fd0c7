// Package cli provides table and colour helpers for chassisd output.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

func wrap(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + "\033[0m"
}

// Green wraps s in ANSI green. Returns s unchanged when NO_COLOR is set.
func Green(s string) string { return wrap("\033[32m", s) }

// Yellow wraps s in ANSI yellow. Returns s unchanged when NO_COLOR is set.
func Yellow(s string) string { return wrap("\033[33m", s) }

// Red wraps s in ANSI red. Returns s unchanged when NO_COLOR is set.
func Red(s string) string { return wrap("\033[31m", s) }

// Bold wraps s in ANSI bold. Returns s unchanged when NO_COLOR is set.
func Bold(s string) string { return wrap("\033[1m", s) }

// Dim wraps s in ANSI dim. Returns s unchanged when NO_COLOR is set.
func Dim(s string) string { return wrap("\033[2m", s) }

// State colours a port state name: up and enabled green, down and disabled
// red, unknown yellow. Anything else is returned as is.
func State(s string) string {
	switch strings.ToLower(s) {
	case "up", "enabled", "attached", "true":
		return Green(s)
	case "down", "disabled", "failed":
		return Red(s)
	case "unknown", "diag":
		return Yellow(s)
	}
	return s
}

// Dash returns s, or "-" when s is empty.
func Dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
