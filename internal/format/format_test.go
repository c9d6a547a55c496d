package format

import (
	"testing"
)

func TestFormatText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		opts Options
		want string
	}{
		{"trailing whitespace", "fn main() {  \n    let x = 1;\t \n}", Options{}, "fn main() {\n    let x = 1;\n}\n"},
		{"empty", "", Options{}, "\n"},
		{"crlf kept", "use std::fs;  \r\nfn f() {}\r\n", Options{PreserveNewlineStyle: true}, "use std::fs;\r\nfn f() {}\r\n"},
		{"crlf dropped", "a\r\nb\r\n", Options{}, "a\nb\n"},
		{"blank runs", "\n\nfn a() {}\n\n\n\nfn b() {}\n\n\n", DefaultOptions(), "fn a() {}\n\nfn b() {}\n"},
		{"runs kept without cap", "a\n\n\nb\n", Options{}, "a\n\n\nb\n"},
	}
	for _, c := range cases {
		if got := FormatText(c.in, c.opts); got != c.want {
			t.Fatalf("%s: got %q want %q", c.name, got, c.want)
		}
	}
}
