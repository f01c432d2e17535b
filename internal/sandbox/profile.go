// Package sandbox validates and executes caller-supplied code under hard
// resource ceilings. Code is parsed to a syntax tree and statically checked
// before any execution; the execution environment is a Starlark thread whose
// predeclared namespace is an explicit allow-list of side-effect-free
// primitives, with no filesystem, network, or process capability reachable.
package sandbox

// Profile selects the enforcement level for a submission. The strict
// profile is the one reachable through the gateway boundary; the trusted
// profile is for internal orchestration code that needs namespace
// introspection to load context.
type Profile struct {
	// Name identifies the profile in logs and provenance.
	Name string

	denied      map[string]bool
	deniedAttrs map[string]bool
}

// capabilityNames are identifiers that reach host capabilities in common
// guest languages. None of them resolve in the execution environment, but
// code referencing them is rejected statically so it is refused as unsafe
// rather than failing at runtime, and before producing any output.
var capabilityNames = []string{
	"open", "file", "input",
	"exec", "eval", "compile", "execfile",
	"__import__", "import_", "load", "require", "module",
	"os", "sys", "subprocess", "socket", "popen", "system", "spawn",
}

// introspectionNames are reflective primitives. Starlark's universe does
// expose these, so the strict profile must reject them statically.
var introspectionNames = []string{
	"getattr", "setattr", "delattr", "hasattr", "dir", "globals", "locals", "vars",
}

// StrictProfile returns the enforcement profile for externally submitted
// agent code: capability and introspection references are both rejected.
func StrictProfile() *Profile {
	p := &Profile{
		Name:        "strict",
		denied:      make(map[string]bool),
		deniedAttrs: make(map[string]bool),
	}
	for _, n := range capabilityNames {
		p.denied[n] = true
		p.deniedAttrs[n] = true
	}
	for _, n := range introspectionNames {
		p.denied[n] = true
		p.deniedAttrs[n] = true
	}
	return p
}

// TrustedProfile returns the wider profile for internal orchestration code.
// Capability references are still rejected; namespace introspection is not.
func TrustedProfile() *Profile {
	p := &Profile{
		Name:        "trusted",
		denied:      make(map[string]bool),
		deniedAttrs: make(map[string]bool),
	}
	for _, n := range capabilityNames {
		p.denied[n] = true
		p.deniedAttrs[n] = true
	}
	return p
}

// Denies reports whether the profile rejects the identifier.
func (p *Profile) Denies(name string) bool {
	return p.denied[name]
}

// DeniesAttr reports whether the profile rejects the attribute or string
// subscript name. Attribute and subscript forms are checked separately from
// bare identifiers to catch indirect-access bypasses.
func (p *Profile) DeniesAttr(name string) bool {
	return p.deniedAttrs[name]
}
