package vm

import (
	"sort"
	"strings"
	"unicode"
)

// Edit costs for suggestion ranking. A case change and a transposition are
// cheaper than a substitution so "getname" ranks close to "getName".
const (
	editCase            = 5
	editDelete          = 10 // also the cost of an insertion
	editSubstitute      = 10
	editTranspose       = 5
	maxSuggestions      = 5
	maxMethodScore      = 50
	maxConstructorScore = 20
	maxPropertyScore    = 30
)

// nameDistance is a Damerau-Levenshtein distance over runes with an extra
// rule for characters that differ only in case.
func nameDistance(s, t string) int {
	a, b := []rune(s), []rune(t)
	n, m := len(a), len(b)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	// Three rows: current, previous, and the one before for transpositions.
	rows := [3][]int{make([]int, n+1), make([]int, n+1), make([]int, n+1)}
	for i := 0; i <= n; i++ {
		rows[1][i] = i * editDelete
	}
	for j := 1; j <= m; j++ {
		tj := b[j-1]
		rows[0][0] = j * editDelete
		for i := 1; i <= n; i++ {
			si := a[i-1]
			var cost int
			if unicode.IsLower(si) != unicode.IsLower(tj) {
				cost = editSubstitute
				if foldEq(si, tj) {
					cost = editCase
				}
			} else if si != tj {
				cost = editSubstitute
			}
			rows[0][i] = min(rows[0][i-1]+editDelete, rows[1][i]+editDelete, rows[1][i-1]+cost)

			if i > 1 && j > 1 && foldEq(si, b[j-2]) && foldEq(a[i-2], tj) {
				cost = 0
				if unicode.IsLower(si) != unicode.IsLower(b[j-2]) {
					cost += editCase
				}
				if unicode.IsLower(a[i-2]) != unicode.IsLower(tj) {
					cost += editCase
				}
				rows[0][i] = min(rows[0][i], rows[2][i-2]+editTranspose+cost)
			}
		}
		rows[0], rows[1], rows[2] = rows[2], rows[0], rows[1]
	}
	return rows[1][n]
}

func foldEq(a, b rune) bool { return unicode.ToLower(a) == unicode.ToLower(b) }

// typeDistance is the Damerau-Levenshtein distance between two type
// vectors, comparing classes by identity.
func typeDistance(s, t []*Class) int {
	n, m := len(s), len(t)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	rows := [3][]int{make([]int, n+1), make([]int, n+1), make([]int, n+1)}
	for i := 0; i <= n; i++ {
		rows[1][i] = i * editDelete
	}
	for j := 1; j <= m; j++ {
		rows[0][0] = j * editDelete
		for i := 1; i <= n; i++ {
			cost := editSubstitute
			if s[i-1] == t[j-1] {
				cost = 0
			}
			rows[0][i] = min(rows[0][i-1]+editDelete, rows[1][i]+editDelete, rows[1][i-1]+cost)
			if i > 1 && j > 1 && s[i-1] == t[j-2] && s[i-2] == t[j-1] {
				rows[0][i] = min(rows[0][i], rows[2][i-2]+editTranspose)
			}
		}
		rows[0], rows[1], rows[2] = rows[2], rows[0], rows[1]
	}
	return rows[1][n]
}

func boxedParams(params []*Class) []*Class {
	out := make([]*Class, len(params))
	for i, p := range params {
		out[i] = Box(p)
	}
	return out
}

type ranked[T any] struct {
	item  T
	score int
}

func rank[T any](items []T, score func(T) int, keep func(int) bool) []T {
	rs := make([]ranked[T], 0, len(items))
	for _, it := range items {
		if s := score(it); keep(s) {
			rs = append(rs, ranked[T]{it, s})
		}
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].score < rs[j].score })
	if len(rs) > maxSuggestions {
		rs = rs[:maxSuggestions]
	}
	out := make([]T, len(rs))
	for i, r := range rs {
		out[i] = r.item
	}
	return out
}

// methodSuggestions ranks candidates by name and argument type distance
// and renders the close ones, or returns "".
func methodSuggestions(name string, argTypes []*Class, candidates []*Method) string {
	seen := make(map[string]bool)
	var unique []*Method
	for _, m := range candidates {
		if m.Name == ConstructorName || isTrampoline(m.Name) || seen[m.Signature()] {
			continue
		}
		seen[m.Signature()] = true
		unique = append(unique, m)
	}
	best := rank(unique, func(m *Method) int {
		return nameDistance(name, m.Name) + typeDistance(argTypes, boxedParams(m.Params))
	}, func(s int) bool { return s <= maxMethodScore })

	parts := make([]string, len(best))
	for i, m := range best {
		parts[i] = m.Signature()
	}
	return renderSuggestions(parts)
}

// constructorSuggestions ranks constructors of c by argument distance.
func constructorSuggestions(c *Class, argTypes []*Class, ctors []*Method) string {
	best := rank(ctors, func(m *Method) int {
		return typeDistance(argTypes, boxedParams(m.Params))
	}, func(s int) bool { return s < maxConstructorScore })

	parts := make([]string, len(best))
	for i, m := range best {
		parts[i] = c.FullName() + "(" + typeList(m.Params) + ")"
	}
	return renderSuggestions(parts)
}

// propertySuggestions ranks property names; an exact match is not a
// suggestion.
func propertySuggestions(name string, props []Property) string {
	best := rank(props, func(p Property) int {
		return nameDistance(name, p.Name())
	}, func(s int) bool { return s >= 1 && s <= maxPropertyScore })

	parts := make([]string, len(best))
	for i, p := range best {
		parts[i] = p.Name()
	}
	return renderSuggestions(parts)
}

func renderSuggestions(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	return "\nPossible solutions: " + strings.Join(parts, ", ")
}
