package transcript

// The bootstrap data embedded in a video page has no stable schema:
// the path to the transcript endpoint params moves between page
// versions. Rather than chase fixed paths, a depth-first walk over the
// decoded JSON finds the first node matching a named shape.

// walk visits node and every descendant map depth-first, returning the
// first non-nil result from match.
func walk(node any, match func(map[string]any) any) any {
	switch v := node.(type) {
	case map[string]any:
		if found := match(v); found != nil {
			return found
		}
		for _, child := range v {
			if found := walk(child, match); found != nil {
				return found
			}
		}
	case []any:
		for _, child := range v {
			if found := walk(child, match); found != nil {
				return found
			}
		}
	}
	return nil
}

// findTranscriptParams locates the capability token for the transcript
// endpoint: any node of shape {getTranscriptEndpoint: {params: "..."}}.
func findTranscriptParams(root any) string {
	found := walk(root, func(m map[string]any) any {
		endpoint, ok := m["getTranscriptEndpoint"].(map[string]any)
		if !ok {
			return nil
		}
		if params, ok := endpoint["params"].(string); ok && params != "" {
			return params
		}
		return nil
	})
	if s, ok := found.(string); ok {
		return s
	}
	return ""
}

// findCueGroups locates the cue list in a transcript response: the
// first node carrying a cueGroups array, or the newer initialSegments
// form.
func findCueGroups(root any) []any {
	found := walk(root, func(m map[string]any) any {
		if groups, ok := m["cueGroups"].([]any); ok {
			return groups
		}
		if segs, ok := m["initialSegments"].([]any); ok {
			return segs
		}
		return nil
	})
	if groups, ok := found.([]any); ok {
		return groups
	}
	return nil
}
