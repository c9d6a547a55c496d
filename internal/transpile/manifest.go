package transpile

import (
	"fmt"
	"strings"
)

// defaultCrateVersions is used for crates missing from the configuration.
var defaultCrateVersions = map[string]string{
	"regex":      "1",
	"chrono":     "0.4",
	"serde_json": "1",
	"sha2":       "0.10",
	"md-5":       "0.10",
}

// Manifest renders a Cargo.toml for a single-file binary crate. crates is
// expected in sorted order; the output is deterministic.
func Manifest(name string, crates []string, versions map[string]string) string {
	var b strings.Builder
	b.WriteString("[package]\n")
	fmt.Fprintf(&b, "name = %q\n", name)
	b.WriteString("version = \"0.1.0\"\n")
	b.WriteString("edition = \"2021\"\n\n")
	b.WriteString("[[bin]]\n")
	fmt.Fprintf(&b, "name = %q\n", name)
	b.WriteString("path = \"src/main.rs\"\n\n")
	b.WriteString("[dependencies]\n")
	for _, c := range crates {
		v := versions[c]
		if v == "" {
			v = defaultCrateVersions[c]
		}
		if v == "" {
			v = "*"
		}
		fmt.Fprintf(&b, "%s = %q\n", c, v)
	}
	return b.String()
}
