package scan

import (
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

var _ ports.Scanner = (*Lexer)(nil)

// Lexer is the portable scanner. It tokenizes the source and recognizes
// module syntax with a small statement matcher.
type Lexer struct{}

// NewLexer creates a new Lexer.
func NewLexer() *Lexer {
	return &Lexer{}
}

// Scan extracts imports, exports and syntax flags from content.
func (Lexer) Scan(content []byte) (*domain.ScanResult, error) {
	toks, err := tokenize(content)
	if err != nil {
		return nil, err
	}
	m := &matcher{toks: toks}
	m.run()
	return m.c.result(), nil
}

type matcher struct {
	toks []token
	c    collector
}

func (m *matcher) at(i int) token {
	if i < len(m.toks) {
		return m.toks[i]
	}
	return token{kind: tokPunct, pos: -1}
}

func (m *matcher) afterDot(i int) bool {
	if i == 0 {
		return false
	}
	prev := m.toks[i-1]
	return prev.is(tokPunct, ".") || prev.is(tokPunct, "?.")
}

func (m *matcher) run() {
	for i := 0; i < len(m.toks); i++ {
		tok := m.toks[i]
		if tok.kind != tokIdent || m.afterDot(i) {
			continue
		}
		switch tok.text {
		case "import":
			m.importKeyword(i)
		case "export":
			m.exportStatement(i + 1)
		case "require":
			if m.at(i+1).is(tokPunct, "(") && m.at(i+2).kind == tokString && m.at(i+3).is(tokPunct, ")") {
				m.c.cjs = true
				m.c.addImport(domain.ImportRef{Specifier: m.at(i + 2).text, Kind: domain.ImportRequire})
			}
		case "module", "exports":
			m.memberChain(i)
		}
	}
}

// chain reads a dotted identifier chain starting at i and returns it with the
// index of the first token after it.
func (m *matcher) chain(i int) (string, int) {
	var b strings.Builder
	b.WriteString(m.toks[i].text)
	j := i + 1
	for {
		sep := m.at(j)
		if !sep.is(tokPunct, ".") && !sep.is(tokPunct, "?.") {
			break
		}
		name := m.at(j + 1)
		if name.kind != tokIdent {
			break
		}
		b.WriteByte('.')
		b.WriteString(name.text)
		j += 2
	}
	return b.String(), j
}

func (m *matcher) memberChain(i int) {
	chain, j := m.chain(i)
	next := m.at(j)
	switch {
	case next.is(tokPunct, "("):
		m.c.call(chain)
	case next.is(tokPunct, "="):
		m.c.assign(chain)
	case next.is(tokPunct, "["):
		if end := m.matching(j); end > 0 && m.at(end+1).is(tokPunct, "=") {
			m.c.assignComputed(chain)
		}
	}
}

// matching returns the index of the bracket closing the one at i.
func (m *matcher) matching(i int) int {
	depth := 0
	for j := i; j < len(m.toks); j++ {
		t := m.toks[j]
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func (m *matcher) importKeyword(i int) {
	next := m.at(i + 1)
	switch {
	case next.is(tokPunct, "("):
		if arg := m.at(i + 2); arg.kind == tokString {
			if after := m.at(i + 3); after.is(tokPunct, ")") || after.is(tokPunct, ",") {
				m.c.addImport(domain.ImportRef{Specifier: arg.text, Kind: domain.ImportDynamic})
			}
		}
	case next.is(tokPunct, "."):
		if m.at(i+2).is(tokIdent, "meta") {
			m.c.esm = true
			chain, j := m.chain(i)
			if m.at(j).is(tokPunct, "(") {
				m.c.call(chain)
			}
		}
	case next.kind == tokString, next.kind == tokIdent, next.is(tokPunct, "{"), next.is(tokPunct, "*"):
		m.importStatement(i + 1)
	}
}

func (m *matcher) importStatement(j int) {
	ref := domain.ImportRef{Kind: domain.ImportStatic}
	if tok := m.at(j); tok.kind == tokString {
		m.c.esm = true
		ref.Specifier = tok.text
		m.c.addImport(ref)
		return
	}
	if tok := m.at(j); tok.kind == tokIdent && tok.text != "from" {
		ref.Default = true
		j++
		if m.at(j).is(tokPunct, ",") {
			j++
		}
	}
	switch {
	case m.at(j).is(tokPunct, "*"):
		if !m.at(j+1).is(tokIdent, "as") || m.at(j+2).kind != tokIdent {
			return
		}
		ref.Namespace = true
		j += 3
	case m.at(j).is(tokPunct, "{"):
		specs, end := m.specifiers(j)
		if end < 0 {
			return
		}
		for _, s := range specs {
			importName(&ref, s.name)
		}
		j = end
	}
	if !m.at(j).is(tokIdent, "from") || m.at(j+1).kind != tokString {
		return
	}
	m.c.esm = true
	ref.Specifier = m.at(j + 1).text
	m.c.addImport(ref)
}

type specifier struct {
	name  string
	alias string
}

// specifiers parses `{ a, b as c }` starting at the opening brace and returns
// the index after the closing brace, or -1 when the list is malformed.
func (m *matcher) specifiers(j int) ([]specifier, int) {
	var out []specifier
	j++
	for {
		tok := m.at(j)
		if tok.is(tokPunct, "}") {
			return out, j + 1
		}
		if tok.kind != tokIdent && tok.kind != tokString {
			return nil, -1
		}
		s := specifier{name: tok.text, alias: tok.text}
		j++
		if m.at(j).is(tokIdent, "as") {
			alias := m.at(j + 1)
			if alias.kind != tokIdent && alias.kind != tokString {
				return nil, -1
			}
			s.alias = alias.text
			j += 2
		}
		out = append(out, s)
		if m.at(j).is(tokPunct, ",") {
			j++
		}
	}
}

func (m *matcher) exportStatement(j int) {
	tok := m.at(j)
	switch {
	case tok.is(tokIdent, "default"):
		m.c.esm = true
		m.c.exportName("default")
	case tok.is(tokPunct, "*"):
		m.exportStar(j + 1)
	case tok.is(tokPunct, "{"):
		m.exportClause(j)
	case tok.is(tokIdent, "const"), tok.is(tokIdent, "let"), tok.is(tokIdent, "var"):
		m.c.esm = true
		m.declarations(j)
	case tok.is(tokIdent, "async"):
		if m.at(j + 1).is(tokIdent, "function") {
			m.c.esm = true
			m.function(j + 2)
		}
	case tok.is(tokIdent, "function"):
		m.c.esm = true
		m.function(j + 1)
	case tok.is(tokIdent, "class"):
		m.c.esm = true
		if name := m.at(j + 1); name.kind == tokIdent {
			m.c.exportName(name.text)
		}
	}
}

func (m *matcher) exportStar(j int) {
	alias := ""
	if m.at(j).is(tokIdent, "as") {
		name := m.at(j + 1)
		if name.kind != tokIdent && name.kind != tokString {
			return
		}
		alias = name.text
		j += 2
	}
	if !m.at(j).is(tokIdent, "from") || m.at(j+1).kind != tokString {
		return
	}
	m.c.esm = true
	spec := m.at(j + 1).text
	if alias == "" {
		m.c.star(spec)
		return
	}
	m.c.reexport(alias, spec)
	m.c.addImport(domain.ImportRef{Specifier: spec, Kind: domain.ImportStatic, Namespace: true})
}

func (m *matcher) exportClause(j int) {
	specs, end := m.specifiers(j)
	if end < 0 {
		return
	}
	m.c.esm = true
	if m.at(end).is(tokIdent, "from") && m.at(end+1).kind == tokString {
		spec := m.at(end + 1).text
		ref := domain.ImportRef{Specifier: spec, Kind: domain.ImportStatic}
		for _, s := range specs {
			importName(&ref, s.name)
			m.c.reexport(s.alias, spec)
		}
		m.c.addImport(ref)
		return
	}
	for _, s := range specs {
		m.c.exportName(s.alias)
	}
}

func (m *matcher) function(j int) {
	if m.at(j).is(tokPunct, "*") {
		j++
	}
	if name := m.at(j); name.kind == tokIdent {
		m.c.exportName(name.text)
	}
}

// statementStart lists keywords that end a declaration list at depth zero.
var statementStart = map[string]bool{
	"export": true, "import": true, "const": true, "let": true, "var": true,
	"function": true, "class": true,
}

// declarations reads the declared names of `const a = 1, b = 2`. Destructuring
// patterns are not enumerated.
func (m *matcher) declarations(j int) {
	live := m.at(j).text != "const"
	if live {
		m.c.exports.LiveBindings = true
	}
	j++
	if name := m.at(j); name.kind == tokIdent {
		m.c.exportName(name.text)
	}
	depth := 0
	for j++; j < len(m.toks); j++ {
		t := m.toks[j]
		if t.kind == tokIdent && depth == 0 && statementStart[t.text] && !m.afterDot(j) {
			return
		}
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
		case ";":
			if depth == 0 {
				return
			}
		case ",":
			if depth == 0 {
				if name := m.at(j + 1); name.kind == tokIdent {
					m.c.exportName(name.text)
				}
			}
		}
	}
}
