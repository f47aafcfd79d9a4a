package shaderlive

import "errors"

// Error kinds. Every package wraps one of these with %w so callers can
// classify a failure with errors.Is regardless of where it came from.
var (
	// ErrInitialization means no usable GPU, device or presentation target.
	// Fatal to the whole session and reported once.
	ErrInitialization = errors.New("shaderlive: initialization failed")

	// ErrCompilation means the shader source was rejected. The previous
	// pipeline stays active and the next update retries automatically.
	ErrCompilation = errors.New("shaderlive: shader compilation failed")

	// ErrPipelineBuild means the source compiled but violates the entry
	// point or layout contract. Recovered exactly like ErrCompilation.
	ErrPipelineBuild = errors.New("shaderlive: pipeline build failed")

	// ErrResourceAllocation means the GPU refused a buffer or binding.
	// The operation is aborted and prior state is retained.
	ErrResourceAllocation = errors.New("shaderlive: resource allocation failed")
)
