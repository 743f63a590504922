// Package testspec parses test-name strings of the form
// TESTCASE[_opt..].grid.compset.machine_compiler[.mods] into their parts.
package testspec

import (
	"fmt"
	"strings"
)

// Spec holds the parsed components of a test name.
type Spec struct {
	Case     string   // e.g. ERS
	Confopts []string // e.g. [D] for ERS_D
	Grid     string   // e.g. f19_g16
	Compset  string   // e.g. B1850
	Machine  string   // e.g. yellowstone
	Compiler string   // e.g. intel
	Mods     string   // optional testmods directory name
}

// Parse splits a test name into its components.
// Example: "ERS_D.f19_g16.B1850.yellowstone_intel.clm-default"
func Parse(name string) (*Spec, error) {
	fields := strings.Split(name, ".")
	if len(fields) < 4 || len(fields) > 5 {
		return nil, fmt.Errorf("invalid test name %q: want 4 or 5 dot-separated fields, got %d", name, len(fields))
	}

	spec := &Spec{
		Grid:    fields[1],
		Compset: fields[2],
	}

	caseParts := strings.Split(fields[0], "_")
	spec.Case = caseParts[0]
	if len(caseParts) > 1 {
		spec.Confopts = caseParts[1:]
	}

	// The machine field is machine_compiler; the machine name itself
	// never contains an underscore.
	machParts := strings.SplitN(fields[3], "_", 2)
	if len(machParts) != 2 {
		return nil, fmt.Errorf("invalid test name %q: machine field %q is not machine_compiler", name, fields[3])
	}
	spec.Machine = machParts[0]
	spec.Compiler = machParts[1]

	if len(fields) == 5 {
		spec.Mods = fields[4]
	}

	for _, part := range []string{spec.Case, spec.Grid, spec.Compset, spec.Machine, spec.Compiler} {
		if part == "" {
			return nil, fmt.Errorf("invalid test name %q: empty field", name)
		}
	}

	return spec, nil
}
