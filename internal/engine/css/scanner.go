package css

import (
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
)

// Stylesheet is what Scan extracts from one stylesheet.
type Stylesheet struct {
	Imports []domain.ImportRef
	Meta    domain.StyleMeta
}

// Scan extracts imports, declared cascade layers and the highest selector
// specificity from a stylesheet. It never fails: unbalanced input is read up
// to its end.
func Scan(content []byte) Stylesheet {
	s := &sheetScanner{src: stripComments(string(content))}
	s.block("", 0)

	out := Stylesheet{Imports: s.imports, Meta: domain.StyleMeta{
		Layers:      s.layers,
		Specificity: s.specificity,
	}}
	if s.unlayeredRules == 0 && len(s.blockLayers) == 1 {
		out.Meta.Layer = s.blockLayers[0]
	}
	return out
}

type sheetScanner struct {
	src string
	pos int

	imports        []domain.ImportRef
	layers         []string
	blockLayers    []string
	unlayeredRules int
	specificity    int
	anonymous      int
}

// block reads statements until the closing brace of the current block.
func (s *sheetScanner) block(layer string, depth int) {
	for {
		prelude, term := s.prelude()
		p := strings.TrimSpace(prelude)
		switch term {
		case 0, '}':
			return
		case ';':
			if strings.HasPrefix(p, "@") {
				s.statement(p, layer, depth)
			}
		case '{':
			if !strings.HasPrefix(p, "@") {
				s.rule(p, layer, depth)
				continue
			}
			name, rest := atRule(p)
			switch name {
			case "layer":
				inner := s.layerName(strings.TrimSpace(rest), layer)
				s.declare(inner)
				if depth == 0 && !slices.Contains(s.blockLayers, inner) {
					s.blockLayers = append(s.blockLayers, inner)
				}
				s.block(inner, depth+1)
			case "media", "supports", "container", "scope", "document", "starting-style":
				s.block(layer, depth+1)
			default:
				s.skip()
			}
		}
	}
}

func (s *sheetScanner) statement(p, layer string, depth int) {
	name, rest := atRule(p)
	switch name {
	case "import":
		if depth > 0 {
			return
		}
		ref, ok := parseImport(rest)
		if !ok {
			return
		}
		if ref.Layer == anonymousLayer {
			ref.Layer = "@anonymous:" + ref.Specifier
		}
		s.imports = append(s.imports, ref)
	case "layer":
		for _, n := range strings.Split(rest, ",") {
			if n = strings.TrimSpace(n); n != "" {
				s.declare(qualify(layer, n))
			}
		}
	}
}

func (s *sheetScanner) rule(selectors, layer string, depth int) {
	s.specificity = max(s.specificity, SelectorSpecificity(selectors))
	if layer == "" && depth == 0 {
		s.unlayeredRules++
	}
	s.skip()
}

func (s *sheetScanner) layerName(name, parent string) string {
	if name == "" {
		s.anonymous++
		return qualify(parent, "@anonymous:"+strconv.Itoa(s.anonymous))
	}
	return qualify(parent, name)
}

func (s *sheetScanner) declare(layer string) {
	if !slices.Contains(s.layers, layer) {
		s.layers = append(s.layers, layer)
	}
}

// prelude reads up to the next ';', '{' or '}' outside strings and
// parentheses and returns the text before it and the terminator.
func (s *sheetScanner) prelude() (string, byte) {
	start := s.pos
	parens := 0
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '"' || c == '\'':
			s.pos = skipString(s.src, s.pos)
			continue
		case c == '(':
			parens++
		case c == ')' && parens > 0:
			parens--
		case parens == 0 && (c == ';' || c == '{' || c == '}'):
			text := s.src[start:s.pos]
			s.pos++
			return text, c
		}
		s.pos++
	}
	return s.src[start:], 0
}

// skip moves past the block whose opening brace was just read.
func (s *sheetScanner) skip() {
	depth := 1
	for s.pos < len(s.src) && depth > 0 {
		switch c := s.src[s.pos]; c {
		case '"', '\'':
			s.pos = skipString(s.src, s.pos)
			continue
		case '{':
			depth++
		case '}':
			depth--
		}
		s.pos++
	}
}

const anonymousLayer = "\x00"

func parseImport(rest string) (domain.ImportRef, bool) {
	rest = strings.TrimSpace(rest)
	var spec string
	switch {
	case strings.HasPrefix(rest, "url("):
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return domain.ImportRef{}, false
		}
		spec = trimQuotes(strings.TrimSpace(rest[4:end]))
		rest = rest[end+1:]
	case strings.HasPrefix(rest, `"`) || strings.HasPrefix(rest, "'"):
		end := skipString(rest, 0)
		spec = trimQuotes(rest[:end])
		rest = rest[end:]
	default:
		return domain.ImportRef{}, false
	}
	if spec == "" {
		return domain.ImportRef{}, false
	}

	ref := domain.ImportRef{Specifier: spec, Kind: domain.ImportStyle}
	rest = strings.TrimSpace(rest)
	switch {
	case strings.HasPrefix(rest, "layer("):
		if end := strings.IndexByte(rest, ')'); end > 0 {
			ref.Layer = strings.TrimSpace(rest[len("layer("):end])
		}
	case rest == "layer" || strings.HasPrefix(rest, "layer "):
		ref.Layer = anonymousLayer
	}
	return ref, true
}

func atRule(p string) (string, string) {
	p = strings.TrimPrefix(p, "@")
	end := strings.IndexFunc(p, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '"' || r == '\'' || r == '('
	})
	if end < 0 {
		return strings.ToLower(p), ""
	}
	return strings.ToLower(p[:end]), p[end:]
}

func qualify(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func stripComments(src string) string {
	if !strings.Contains(src, "/*") {
		return src
	}
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); {
		switch {
		case src[i] == '"' || src[i] == '\'':
			end := skipString(src, i)
			b.WriteString(src[i:end])
			i = end
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			b.WriteByte(' ')
			i += end + 4
		default:
			b.WriteByte(src[i])
			i++
		}
	}
	return b.String()
}

// skipString returns the index just past the string literal starting at i.
func skipString(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote, '\n':
			return j + 1
		}
	}
	return len(src)
}

func trimQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// StripImports removes the top-level @import and @charset statements of a
// stylesheet. Both lose their meaning once sheets are concatenated.
func StripImports(content []byte) string {
	src := string(content)
	var b strings.Builder
	b.Grow(len(src))
	depth := 0
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '"' || c == '\'':
			end := skipString(src, i)
			b.WriteString(src[i:end])
			i = end
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				b.WriteString(src[i:])
				return b.String()
			}
			b.WriteString(src[i : i+end+4])
			i += end + 4
		case c == '@' && depth == 0 && (hasPrefixFold(src[i:], "@import") || hasPrefixFold(src[i:], "@charset")):
			i = statementEnd(src, i)
			if i < len(src) && src[i] == '\n' {
				i++
			}
		default:
			switch c {
			case '{':
				depth++
			case '}':
				depth = max(0, depth-1)
			}
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// statementEnd returns the index just past the ';' ending the at-rule
// statement starting at i.
func statementEnd(src string, i int) int {
	parens := 0
	for i < len(src) {
		switch c := src[i]; {
		case c == '"' || c == '\'':
			i = skipString(src, i)
			continue
		case c == '(':
			parens++
		case c == ')' && parens > 0:
			parens--
		case c == ';' && parens == 0:
			return i + 1
		case c == '{' && parens == 0:
			return i
		}
		i++
	}
	return len(src)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
