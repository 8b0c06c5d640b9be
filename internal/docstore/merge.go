package docstore

// mergeValue applies the merge-on-matching-shape rules:
//   - mapping into mapping: keys merged, patch wins on conflict
//   - sequence into sequence: patch fully replaces the target
//   - any other combination (including a missing target): patch verbatim
func mergeValue(existing, patch any) any {
	if em, ok := existing.(map[string]any); ok {
		if pm, ok := patch.(map[string]any); ok {
			for k, v := range pm {
				em[k] = v
			}
			return em
		}
	}
	if _, ok := existing.([]any); ok {
		if _, ok := patch.([]any); ok {
			return patch
		}
	}
	return patch
}
