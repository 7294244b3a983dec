// Package instrument defines the opaque boundary between the sampling
// core and instrument content: parsing GigaSampler/SF2/SFZ files is out
// of scope, so the core only ever interacts with instruments and regions
// through these interfaces, supplied by a loader the core does not own.
package instrument

import "github.com/justyntemme/sampler-core/pkg/voice"

// Instrument is a loaded, ready-to-play instrument definition. The core
// never inspects an instrument's content directly; it asks for the
// regions matching a triggering key/velocity and gets back opaque
// Trigger descriptors.
type Instrument struct {
	Name    string
	Regions []Region
}

// Region is one opaque key/velocity-range mapping within an instrument.
// Matches returns whether this region should sound for the given trigger.
type Region interface {
	Matches(key, velocity uint8) bool

	// Trigger returns the voice parameters and sample source for a note
	// landing on this region. ok is false if the region has no playable
	// content for this trigger (e.g. a silent/discard region).
	Trigger(key, velocity uint8, sampleRate float64) (voice.Params, voice.Source, bool)

	// ReleaseTrigger reports whether this region should additionally spawn
	// a release-trigger voice on note-off (spec §4.6).
	ReleaseTrigger() bool
}

// MatchingRegions returns every region of the instrument that should
// sound for the given key/velocity, in the instrument's own layer order;
// the caller (the note-on processing path) triggers one Voice per result.
func (i *Instrument) MatchingRegions(key, velocity uint8) []Region {
	var matched []Region
	for _, r := range i.Regions {
		if r.Matches(key, velocity) {
			matched = append(matched, r)
		}
	}
	return matched
}
