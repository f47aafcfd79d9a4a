package shaderlive

import "sync/atomic"

// Revision identifies one version of the edited shader source.
// Revisions increase monotonically; zero means "no revision".
type Revision uint64

// Newer reports whether r supersedes other.
func (r Revision) Newer(other Revision) bool {
	return r > other
}

// ShaderSource is one immutable version of the shader text.
// Each edit produces a new ShaderSource with a higher Revision.
type ShaderSource struct {
	Code     string
	Revision Revision
}

// IsZero reports whether s carries no revision.
func (s ShaderSource) IsZero() bool {
	return s.Revision == 0
}

// RevisionCounter hands out strictly increasing revisions.
// The zero value is ready to use; the first revision is 1.
//
// RevisionCounter is safe for concurrent use.
type RevisionCounter struct {
	last atomic.Uint64
}

// Next returns a ShaderSource for code stamped with the next revision.
func (c *RevisionCounter) Next(code string) ShaderSource {
	return ShaderSource{Code: code, Revision: Revision(c.last.Add(1))}
}

// Last returns the most recently issued revision.
func (c *RevisionCounter) Last() Revision {
	return Revision(c.last.Load())
}
