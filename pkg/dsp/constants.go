// Package dsp provides small allocation-free buffer utilities shared by
// the voice renderer and channel mixer, plus the common numeric constants
// they're built on.
package dsp

// Common audio constants used throughout the engine's render path.
const (
	MinDB     = -200.0 // Minimum dB value (effectively silence)
	UnityGain = 1.0    // Unity gain (0 dB)

	MinFrequency = 20.0    // 20 Hz
	MaxFrequency = 20000.0 // 20 kHz

	MinQ     = 0.1
	MaxQ     = 20.0
	DefaultQ = 0.707 // Butterworth response

	Mono   = 1
	Stereo = 2

	SampleRate32k  = 32000.0
	SampleRate44k1 = 44100.0
	SampleRate48k  = 48000.0
	SampleRate88k2 = 88200.0
	SampleRate96k  = 96000.0
	SampleRate192k = 192000.0

	MinBufferSize     = 32
	DefaultBufferSize = 512
	MaxBufferSize     = 8192

	MinMix  = 0.0 // Dry
	MaxMix  = 1.0 // Wet
	HalfMix = 0.5 // 50/50

	TwoPi  = 6.283185307179586
	Pi     = 3.141592653589793
	HalfPi = 1.5707963267948966

	DegreesToRadians = Pi / 180.0
	RadiansToDegrees = 180.0 / Pi

	Epsilon      = 1e-6
	SmallFloat32 = 1e-30

	ClipThreshold     = 0.999
	SoftClipThreshold = 0.95
)
