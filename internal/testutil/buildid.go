package testutil

// FixedBuildID generates the same build id every time.
//
// This enables deterministic pipeline runs and golden snapshot comparison.
// If id is empty, Generate returns "test-build-default".
//
// Thread-safety: FixedBuildID is stateless and safe for concurrent use.
type FixedBuildID string

// Generate returns the fixed build id.
//
// Implements pipeline.IDGenerator.
func (g FixedBuildID) Generate() string {
	if g == "" {
		return "test-build-default"
	}
	return string(g)
}
