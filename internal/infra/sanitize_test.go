package infra

import "testing"

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "a cat on a skateboard", want: "a cat on a skateboard"},
		{name: "newline injection", in: "ok\nlevel=error msg=forged", want: "ok\\nlevel=error msg=forged"},
		{name: "carriage return and tab", in: "a\r\tb", want: "a\\r\\tb"},
		{name: "nul byte", in: "a\x00b", want: "a\\x00b"},
		{name: "ansi escape", in: "\x1b[31mred", want: "\\x1b[31mred"},
		{name: "delete", in: "x\x7f", want: "x\\x7f"},
		{name: "unicode kept", in: "café ☕", want: "café ☕"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeForLog(tc.in); got != tc.want {
				t.Fatalf("SanitizeForLog(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("Truncate short = %q", got)
	}
	if got := Truncate("héllo world", 5); got != "héllo…" {
		t.Fatalf("Truncate long = %q", got)
	}
	if got := Truncate("x", 0); got != "" {
		t.Fatalf("Truncate zero = %q", got)
	}
}
