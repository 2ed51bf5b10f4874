package detect

// sceneKey is the simplified identity of a detection used for change
// comparison: the exact box and confidence jitter between frames, but the
// spoken outcome only depends on label, distance bucket, and position.
type sceneKey struct {
	label    string
	bucket   string
	position Position
}

// Changed reports whether the detected scene differs materially from the
// previous one. Re-running analysis on an unchanged scene just repeats the
// same sentence into the cooldown window.
func Changed(prev, cur []Detection) bool {
	if prev == nil {
		return true
	}
	if len(prev) != len(cur) {
		return true
	}

	prevSet := make(map[sceneKey]int, len(prev))
	for _, d := range prev {
		prevSet[keyOf(d)]++
	}
	for _, d := range cur {
		k := keyOf(d)
		if prevSet[k] == 0 {
			return true
		}
		prevSet[k]--
	}
	return false
}

func keyOf(d Detection) sceneKey {
	return sceneKey{
		label:    d.Label,
		bucket:   Bucket(d.Distance),
		position: d.Position,
	}
}
