// Package interpolation implements the fractional-position sample lookup
// voice.Voice.Render uses every frame to convert a Source's integer-indexed
// frames into a continuous playback position at the voice's pitch-shifted
// step rate.
package interpolation

// Linear interpolates between y0 (at the sample before pos) and y1 (at the
// sample after), frac being the fractional part of pos. This is the
// interpolation every Voice uses: Source.Frame only ever exposes two
// neighbouring points at a time, which rules out the pack's 4-point
// cubic/Hermite/windowed-sinc variants without widening that interface.
func Linear(y0, y1, frac float32) float32 {
	return y0 + (y1-y0)*frac
}