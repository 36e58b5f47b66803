package hubconfig

import "reflect"

// ComputeDiff compares two snapshots of the server map using the
// significant-field set from §3. Deep equality is used for structured
// values (args, env, headers, dev).
func ComputeDiff(oldCfg, newCfg map[string]ServerConfig) Diff {
	diff := Diff{Details: make(map[string]FieldDiff)}

	for name := range newCfg {
		if _, existed := oldCfg[name]; !existed {
			diff.Added = append(diff.Added, name)
		}
	}
	for name := range oldCfg {
		if _, exists := newCfg[name]; !exists {
			diff.Removed = append(diff.Removed, name)
		}
	}
	for name, newC := range newCfg {
		oldC, existed := oldCfg[name]
		if !existed {
			continue
		}
		fields, oldVals, newVals := diffFields(oldC, newC)
		if len(fields) > 0 {
			diff.Modified = append(diff.Modified, name)
			diff.Details[name] = FieldDiff{ModifiedFields: fields, OldValues: oldVals, NewValues: newVals}
		} else {
			diff.Unchanged = append(diff.Unchanged, name)
		}
	}

	return diff
}

func diffFields(oldC, newC ServerConfig) (fields []string, oldVals, newVals map[string]any) {
	oldVals = make(map[string]any)
	newVals = make(map[string]any)

	check := func(field string, oldV, newV any, equal bool) {
		if !equal {
			fields = append(fields, field)
			oldVals[field] = oldV
			newVals[field] = newV
		}
	}

	check("name", oldC.Name, newC.Name, oldC.Name == newC.Name)
	check("command", oldC.Command, newC.Command, oldC.Command == newC.Command)
	check("args", oldC.Args, newC.Args, reflect.DeepEqual(oldC.Args, newC.Args))
	check("env", oldC.Env, newC.Env, envEqual(oldC.Env, newC.Env))
	check("disabled", oldC.Disabled, newC.Disabled, oldC.Disabled == newC.Disabled)
	check("url", oldC.URL, newC.URL, oldC.URL == newC.URL)
	check("headers", oldC.Headers, newC.Headers, reflect.DeepEqual(oldC.Headers, newC.Headers))
	check("dev", oldC.Dev, newC.Dev, devEqual(oldC.Dev, newC.Dev))

	return fields, oldVals, newVals
}

func envEqual(a, b map[string]*string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		switch {
		case av == nil && bv == nil:
			continue
		case av == nil || bv == nil:
			return false
		default:
			if *av != *bv {
				return false
			}
		}
	}
	return true
}

func devEqual(a, b *DevConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(*a, *b)
}
