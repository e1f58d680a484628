package facematch

// DefaultThreshold is the maximum distance accepted as the same person.
const DefaultThreshold = 0.6

// Candidate is a labeled enrolled descriptor.
type Candidate struct {
	ID         string
	Descriptor Descriptor
}

// Result is the best candidate found for a query.
type Result struct {
	ID       string
	Distance float64
}

// Matcher compares a query against a candidate set.
type Matcher struct {
	Threshold float64
}

// New returns a matcher using threshold, or DefaultThreshold when threshold <= 0.
func New(threshold float64) Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold}
}

// Match returns the nearest candidate when its distance is within the threshold.
// On equal distances the candidate with the lowest index wins.
func (m Matcher) Match(query Descriptor, candidates []Candidate) (Result, bool) {
	if len(candidates) == 0 {
		return Result{}, false
	}
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	best := -1
	bestDist := 0.0
	for i, c := range candidates {
		d := Distance(query, c.Descriptor)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if bestDist > threshold {
		return Result{}, false
	}
	return Result{ID: candidates[best].ID, Distance: bestDist}, true
}

// Match runs the default matcher.
func Match(query Descriptor, candidates []Candidate) (Result, bool) {
	return New(DefaultThreshold).Match(query, candidates)
}

// Comparable splits candidates into those whose descriptors have length dim
// and the ids of those that do not.
func Comparable(candidates []Candidate, dim int) (kept []Candidate, skipped []string) {
	kept = make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Descriptor) != dim {
			skipped = append(skipped, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	return kept, skipped
}
