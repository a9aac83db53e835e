package domain

// AudioLadder is the audio-only fallback catalog, highest preferred bitrate
// first. Fixed configuration data.
var AudioLadder = []string{"251", "140", "250", "249", "139", "600"}

// ResolutionClass groups the format identifiers of one resolution tier,
// ordered by preference within the tier.
type ResolutionClass struct {
	Height  int
	Formats []string
}

// ResolutionLadder maps resolution classes to candidate format identifiers,
// highest class first. Fixed configuration data.
var ResolutionLadder = []ResolutionClass{
	{Height: 2160, Formats: []string{"313"}},
	{Height: 1440, Formats: []string{"271", "272"}},
	{Height: 1080, Formats: []string{"248", "614", "616", "137"}},
	{Height: 720, Formats: []string{"247", "609", "136"}},
	{Height: 480, Formats: []string{"244", "606", "135"}},
}

// IsAudioFormat reports whether the identifier belongs to the audio-only
// catalog.
func IsAudioFormat(formatID string) bool {
	for _, id := range AudioLadder {
		if id == formatID {
			return true
		}
	}
	return false
}

// ClassIndexOf returns the index into ResolutionLadder of the class
// containing the identifier, or -1 when the identifier is not in the ladder.
func ClassIndexOf(formatID string) int {
	for i, class := range ResolutionLadder {
		for _, id := range class.Formats {
			if id == formatID {
				return i
			}
		}
	}
	return -1
}

// FallbackState tracks one logical download attempt chain. It is created
// fresh per top-level request and threaded through every fallback step.
type FallbackState struct {
	Requested string
	failed    []string
	failedSet map[string]struct{}
}

// NewFallbackState creates fallback state for a requested identifier.
func NewFallbackState(requested string) *FallbackState {
	return &FallbackState{
		Requested: requested,
		failedSet: make(map[string]struct{}),
	}
}

// MarkFailed records an identifier as failed. Recording the same identifier
// twice is a no-op.
func (s *FallbackState) MarkFailed(formatID string) {
	if _, ok := s.failedSet[formatID]; ok {
		return
	}
	s.failedSet[formatID] = struct{}{}
	s.failed = append(s.failed, formatID)
}

// HasFailed reports whether the identifier was already tried.
func (s *FallbackState) HasFailed(formatID string) bool {
	_, ok := s.failedSet[formatID]
	return ok
}

// Failed returns the failed identifiers in the order they failed.
func (s *FallbackState) Failed() []string {
	out := make([]string, len(s.failed))
	copy(out, s.failed)
	return out
}
