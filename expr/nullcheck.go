package expr

import "github.com/gnemet/gridquery/fieldpath"

// CreateNullChecks returns a conjunction of nil guards for every nullable
// prefix of path, shortest first, so evaluation stops at the first nil link.
// With skipFinal the guard on the full path is left out; nullity conditions
// use this to test the terminal value themselves. A path with nothing to guard
// yields the constant true.
func CreateNullChecks[T any](path *fieldpath.Path[T], skipFinal bool) Node[T] {
	n := path.Len()
	if skipFinal {
		n--
	}
	var guards []Node[T]
	for i := 1; i <= n; i++ {
		if !path.Segment(i - 1).Nullable {
			continue
		}
		guards = append(guards, &NullGuard[T]{Path: path.Prefix(i)})
	}
	return AndAll(guards...)
}

// NullChecksFor finds the first member access in n and returns the null checks
// for its path. A tree without member accesses yields the constant true.
func NullChecksFor[T any](n Node[T], skipFinal bool) Node[T] {
	var path *fieldpath.Path[T]
	Walk(n, func(n Node[T]) bool {
		if m, ok := n.(*Member[T]); ok {
			path = m.Path
			return false
		}
		return true
	})
	if path == nil {
		return True[T]()
	}
	return CreateNullChecks(path, skipFinal)
}
