package hda

import (
	"testing"

	"pgregory.net/rapid"
)

// TestVolumeToGainStepMonotonicLaw checks spec.md's volume monotonicity
// law: a higher requested volume percentage never yields a lower gain step,
// for any maximum step count the converter advertises.
func TestVolumeToGainStepMonotonicLaw(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxStep := uint8(rapid.IntRange(0, 127).Draw(rt, "maxStep"))
		a := uint8(rapid.IntRange(0, 100).Draw(rt, "a"))
		b := uint8(rapid.IntRange(0, 100).Draw(rt, "b"))
		if a > b {
			a, b = b, a
		}

		va := volumeToGainStep(a, maxStep)
		vb := volumeToGainStep(b, maxStep)
		if va > vb {
			rt.Fatalf("volumeToGainStep not monotonic: volumeToGainStep(%d, %d)=%d > volumeToGainStep(%d, %d)=%d", a, maxStep, va, b, maxStep, vb)
		}
	})
}

// TestVolumeToGainStepBounds checks the step never exceeds maxStep, and
// that 100% always maps to exactly maxStep (spec.md's "no rounding loss at
// full volume" requirement).
func TestVolumeToGainStepBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxStep := uint8(rapid.IntRange(0, 127).Draw(rt, "maxStep"))
		volume := uint8(rapid.IntRange(0, 255).Draw(rt, "volume"))

		got := volumeToGainStep(volume, maxStep)
		if got > maxStep {
			rt.Fatalf("volumeToGainStep(%d, %d) = %d, exceeds maxStep", volume, maxStep, got)
		}
	})

	if got := volumeToGainStep(100, 63); got != 63 {
		t.Fatalf("volumeToGainStep(100, 63) = %d, want 63", got)
	}
	if got := volumeToGainStep(0, 63); got != 0 {
		t.Fatalf("volumeToGainStep(0, 63) = %d, want 0", got)
	}
}
