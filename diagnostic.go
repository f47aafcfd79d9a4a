package shaderlive

import "fmt"

// Kind classifies a Diagnostic.
type Kind int

const (
	// KindCompilation is a rejected shader source.
	KindCompilation Kind = iota
	// KindPipelineBuild is a compiled shader that cannot form a pipeline.
	KindPipelineBuild
	// KindResourceAllocation is a GPU allocation failure.
	KindResourceAllocation
	// KindInitialization is a GPU context failure.
	KindInitialization
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCompilation:
		return "Compilation"
	case KindPipelineBuild:
		return "PipelineBuild"
	case KindResourceAllocation:
		return "ResourceAllocation"
	case KindInitialization:
		return "Initialization"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// sentinel returns the package error matching k.
func (k Kind) sentinel() error {
	switch k {
	case KindPipelineBuild:
		return ErrPipelineBuild
	case KindResourceAllocation:
		return ErrResourceAllocation
	case KindInitialization:
		return ErrInitialization
	default:
		return ErrCompilation
	}
}

// Position is a 1-based line and column in shader source.
// The zero value means the position is unknown.
type Position struct {
	Line   int
	Column int
}

// Known reports whether the position carries a line.
func (p Position) Known() bool {
	return p.Line > 0
}

// String formats the position as "line:column".
func (p Position) String() string {
	if !p.Known() {
		return "?"
	}
	if p.Column <= 0 {
		return fmt.Sprintf("%d", p.Line)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Diagnostic is a human-readable failure report for the diagnostic surface.
//
// Diagnostic implements error. Unwrap returns the sentinel matching Kind,
// so errors.Is(d, ErrCompilation) holds for compilation diagnostics.
type Diagnostic struct {
	Kind     Kind
	Message  string
	Position Position

	// Revision is the source revision the diagnostic belongs to.
	Revision Revision
}

// Error renders the diagnostic the way it is shown to the author.
func (d *Diagnostic) Error() string {
	prefix := "Shader compilation error"
	switch d.Kind {
	case KindPipelineBuild:
		prefix = "Pipeline creation error"
	case KindResourceAllocation:
		prefix = "Resource allocation error"
	case KindInitialization:
		prefix = "GPU initialization error"
	}
	if d.Position.Known() {
		return fmt.Sprintf("%s at line %s: %s", prefix, d.Position, d.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, d.Message)
}

// Unwrap returns the error kind sentinel.
func (d *Diagnostic) Unwrap() error {
	return d.Kind.sentinel()
}
