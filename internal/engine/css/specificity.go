package css

import "strings"

// Specificity weights. A selector scores ids×100 + classes×10 + types.
const (
	idWeight    = 100
	classWeight = 10
	typeWeight  = 1
)

var legacyPseudoElements = map[string]bool{
	"before":       true,
	"after":        true,
	"first-line":   true,
	"first-letter": true,
}

// SelectorSpecificity returns the highest specificity of a selector list.
func SelectorSpecificity(list string) int {
	best := 0
	for _, sel := range splitTopLevel(list, ',') {
		best = max(best, specificity(strings.TrimSpace(sel)))
	}
	return best
}

func specificity(sel string) int {
	score := 0
	compoundStart := true
	for i := 0; i < len(sel); {
		c := sel[i]
		switch {
		case c == '#':
			score += idWeight
			i = skipIdent(sel, i+1)
			compoundStart = false
		case c == '.':
			score += classWeight
			i = skipIdent(sel, i+1)
			compoundStart = false
		case c == '[':
			score += classWeight
			i = skipBracket(sel, i)
			compoundStart = false
		case c == ':':
			var s int
			s, i = pseudo(sel, i)
			score += s
			compoundStart = false
		case c == '*' || c == '&':
			i++
			compoundStart = false
		case c == ' ' || c == '>' || c == '+' || c == '~' || c == '\t' || c == '\n':
			i++
			compoundStart = true
		case compoundStart && isIdentByte(c):
			score += typeWeight
			i = skipIdent(sel, i)
			compoundStart = false
		default:
			i++
		}
	}
	return score
}

// pseudo scores the pseudo-class or pseudo-element starting at i.
func pseudo(sel string, i int) (int, int) {
	element := strings.HasPrefix(sel[i:], "::")
	if element {
		i += 2
	} else {
		i++
	}
	start := i
	i = skipIdent(sel, i)
	name := strings.ToLower(sel[start:i])

	var arg string
	if i < len(sel) && sel[i] == '(' {
		end := matchParen(sel, i)
		arg = sel[i+1 : max(i+1, end-1)]
		i = end
	}

	switch {
	case element || legacyPseudoElements[name]:
		return typeWeight, i
	case name == "where":
		return 0, i
	case name == "is" || name == "not" || name == "has" || name == "matches":
		return SelectorSpecificity(arg), i
	default:
		return classWeight, i
	}
}

func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func skipIdent(s string, i int) int {
	for i < len(s) && (isIdentByte(s[i]) || s[i] == '\\') {
		if s[i] == '\\' {
			i++
		}
		i++
	}
	return min(i, len(s))
}

func skipBracket(s string, i int) int {
	for j := i; j < len(s); j++ {
		if s[j] == ']' {
			return j + 1
		}
	}
	return len(s)
}

// matchParen returns the index just past the parenthesis opened at i.
func matchParen(s string, i int) int {
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return len(s)
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
