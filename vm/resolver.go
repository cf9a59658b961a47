package vm

// Choose picks the most specific overload of name among candidates for the
// argument types. class names the receiver in error messages.
//
// Fails with *NoApplicableOverloadError when nothing fits and with
// *AmbiguousOverloadError when several candidates tie.
func Choose(class *Class, name string, candidates []*Method, argTypes []*Class) (*Method, error) {
	m, err := chooseInternal(class, name, candidates, argTypes)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &NoApplicableOverloadError{Class: class, Method: name, ArgTypes: argTypes}
	}
	return m, nil
}

func chooseInternal(class *Class, name string, candidates []*Method, argTypes []*Class) (*Method, error) {
	switch {
	case len(candidates) == 0:
		return nil, nil
	case len(candidates) == 1:
		if candidates[0].isValidFor(argTypes) {
			return candidates[0], nil
		}
		return nil, nil
	case len(argTypes) == 0:
		return chooseEmpty(candidates), nil
	}

	var valid []*Method
	for _, m := range candidates {
		if m.isValidFor(argTypes) {
			valid = append(valid, m)
		}
	}
	switch len(valid) {
	case 0:
		return nil, nil
	case 1:
		return valid[0], nil
	}
	return chooseMostSpecific(class, name, valid, argTypes)
}

// chooseEmpty handles a call without arguments: a zero-parameter overload
// wins, then a lone varargs slot.
func chooseEmpty(candidates []*Method) *Method {
	var varargs *Method
	for _, m := range candidates {
		switch {
		case len(m.Params) == 0:
			return m
		case len(m.Params) == 1 && m.IsVarargs():
			varargs = m
		}
	}
	return varargs
}

func chooseMostSpecific(class *Class, name string, valid []*Method, argTypes []*Class) (*Method, error) {
	best := int64(-1)
	var matches []*Method
	for _, m := range valid {
		d := ParameterDistance(argTypes, m)
		if d == 0 {
			return m, nil
		}
		switch {
		case best == -1 || d < best:
			best = d
			matches = append(matches[:0], m)
		case d == best:
			matches = append(matches, m)
		}
	}
	if len(matches) > 1 {
		matches = dropRedundant(matches)
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	}
	return nil, &AmbiguousOverloadError{Class: class, Method: name, ArgTypes: argTypes, Candidates: matches}
}

// dropRedundant removes a candidate when another tied candidate has
// different parameter types that it would accept entirely: the narrower
// signature stays.
func dropRedundant(matches []*Method) []*Method {
	kept := append([]*Method(nil), matches...)
	for i := 0; i < len(kept); {
		outer := kept[i]
		removed := false
		for _, inner := range kept {
			if inner == outer || sameTypes(inner.Params, outer.Params) {
				continue
			}
			if parametersCompatible(inner.Params, outer.Params) {
				kept = append(kept[:i], kept[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			i++
		}
	}
	return kept
}
