package settings

// Merge layers the portal document (individual) over the account template
// (global). The individual document wins at the top level; keys only the
// template has are inherited. When both sides hold a plain object under the
// same key the two objects are combined one level deep, individual keys
// winning. Deeper levels are replaced, not merged.
//
// Neither input is modified.
func Merge(global, individual Object) Object {
	if len(individual) == 0 {
		if len(global) == 0 {
			return Object{}
		}
		return global.Clone()
	}
	if len(global) == 0 {
		return individual.Clone()
	}

	merged := individual.Clone()
	for key, globalValue := range global {
		current, ok := merged[key]
		if !ok {
			merged[key] = globalValue
			continue
		}
		globalObj, globalIsObj := asObject(globalValue)
		currentObj, currentIsObj := asObject(current)
		if !globalIsObj || !currentIsObj {
			continue
		}
		nested := make(Object, len(globalObj)+len(currentObj))
		for k, v := range globalObj {
			nested[k] = v
		}
		for k, v := range currentObj {
			nested[k] = v
		}
		merged[key] = nested
	}
	return merged
}
