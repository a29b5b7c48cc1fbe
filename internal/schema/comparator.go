package schema

// Jaro-Winkler string similarity. Chosen for the default string comparator
// because it rewards shared prefixes, which is where typos in names and
// addresses cluster least.

const (
	// winklerPrefixScale is the standard boost per shared prefix character
	winklerPrefixScale = 0.1

	// winklerMaxPrefix caps the prefix considered for the boost
	winklerMaxPrefix = 4
)

// JaroWinkler returns the Jaro-Winkler similarity of two strings in [0, 1].
// 1.0 means identical, 0.0 means no character overlap. Operates on runes so
// accented input that survives normalization still compares sanely.
func JaroWinkler(a, b string) float64 {
	jaro := jaroSimilarity([]rune(a), []rune(b))
	if jaro == 0 {
		return 0
	}

	prefix := 0
	ra, rb := []rune(a), []rune(b)
	for prefix < len(ra) && prefix < len(rb) && prefix < winklerMaxPrefix {
		if ra[prefix] != rb[prefix] {
			break
		}
		prefix++
	}

	return jaro + float64(prefix)*winklerPrefixScale*(1-jaro)
}

// jaroSimilarity computes the base Jaro similarity over rune slices
func jaroSimilarity(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if string(a) == string(b) {
		return 1
	}

	// Characters match when equal and within half the longer length
	window := max(len(a), len(b))/2 - 1
	if window < 0 {
		window = 0
	}

	matchedA := make([]bool, len(a))
	matchedB := make([]bool, len(b))
	matches := 0

	for i := range a {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window + 1
		if hi > len(b) {
			hi = len(b)
		}
		for j := lo; j < hi; j++ {
			if matchedB[j] || a[i] != b[j] {
				continue
			}
			matchedA[i] = true
			matchedB[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0
	}

	// Count transpositions among matched characters
	transpositions := 0
	j := 0
	for i := range a {
		if !matchedA[i] {
			continue
		}
		for !matchedB[j] {
			j++
		}
		if a[i] != b[j] {
			transpositions++
		}
		j++
	}
	transpositions /= 2

	m := float64(matches)
	return (m/float64(len(a)) + m/float64(len(b)) + (m-float64(transpositions))/m) / 3
}
