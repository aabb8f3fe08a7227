// Package version provides the one-line version banner the demonstration
// CLI prints for --version, replacing the teacher's
// github.com/perforce/p4prometheus/version dependency (a Perforce-specific
// build-info banner with no home in this module's domain, per DESIGN.md's
// dropped-dependency list) with a small local equivalent in the same
// style: a package-level string filled in at build time via -ldflags.
package version

import "fmt"

// Version is set at build time via -ldflags "-X .../version.Version=...".
var Version = "dev"

// Print renders prog's version banner, matching the teacher's
// version.Print(progname) call sites in main.go/gitgraph.go/gitfilter.go.
func Print(prog string) string {
	return fmt.Sprintf("%s version %s", prog, Version)
}
