package cli

import (
	"strings"
	"testing"
)

func TestColorFunctions(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(string) string
		prefix string
	}{
		{"Green", Green, "\033[32m"},
		{"Yellow", Yellow, "\033[33m"},
		{"Red", Red, "\033[31m"},
		{"Bold", Bold, "\033[1m"},
		{"Dim", Dim, "\033[2m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn("hello")
			if !strings.HasPrefix(got, tt.prefix) || !strings.HasSuffix(got, "\033[0m") {
				t.Errorf("%s(hello) = %q", tt.name, got)
			}
			if !strings.Contains(got, "hello") {
				t.Errorf("%s should contain the input string", tt.name)
			}
		})
	}
}

func TestNoColor(t *testing.T) {
	colorEnabled = false
	defer func() { colorEnabled = true }()

	if got := Red("down"); got != "down" {
		t.Errorf("Red with colour disabled = %q", got)
	}
}

func TestState(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"up", Green("up")},
		{"Enabled", Green("Enabled")},
		{"down", Red("down")},
		{"disabled", Red("disabled")},
		{"unknown", Yellow("unknown")},
		{"tap", "tap"},
	}
	for _, tt := range tests {
		if got := State(tt.in); got != tt.want {
			t.Errorf("State(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDash(t *testing.T) {
	if Dash("") != "-" || Dash("x") != "x" {
		t.Errorf("Dash() = %q, %q", Dash(""), Dash("x"))
	}
}
