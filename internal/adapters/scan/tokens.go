package scan

import (
	"bytes"
	"unicode"
	"unicode/utf8"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

type tokenKind uint8

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokPunct
	tokRegex
	tokTemplate
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

// keywords after which a slash starts a regular expression literal.
var regexAfter = map[string]bool{
	"return": true, "typeof": true, "case": true, "do": true, "else": true,
	"in": true, "instanceof": true, "new": true, "delete": true, "void": true,
	"throw": true, "yield": true, "await": true, "of": true,
}

// tokenizer splits JavaScript source into the tokens the scanner needs.
// Comments and whitespace are dropped; template literal text is dropped but
// the expressions inside ${...} are tokenized.
type tokenizer struct {
	src    []byte
	pos    int
	out    []token
	braces []byte
}

func tokenize(src []byte) ([]token, error) {
	t := &tokenizer{src: src}
	if err := t.run(); err != nil {
		return nil, err
	}
	return t.out, nil
}

func (t *tokenizer) fail(reason string) error {
	return zerr.With(zerr.With(domain.ErrScanFailed, "offset", t.pos), "reason", reason)
}

func (t *tokenizer) run() error {
	if bytes.HasPrefix(t.src, []byte("#!")) {
		t.skipLine()
	}
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		switch {
		case c == '\n' || c == '\r' || c == ' ' || c == '\t' || c == '\f' || c == '\v':
			t.pos++
		case c == '/' && t.peek(1) == '/':
			t.skipLine()
		case c == '/' && t.peek(1) == '*':
			if err := t.skipBlock(); err != nil {
				return err
			}
		case c == '\'' || c == '"':
			if err := t.str(c); err != nil {
				return err
			}
		case c == '`':
			t.pos++
			if err := t.template(); err != nil {
				return err
			}
		case c == '/' && t.regexAllowed():
			if err := t.regex(); err != nil {
				return err
			}
		case c >= '0' && c <= '9' || c == '.' && isDigit(t.peek(1)):
			t.number()
		case isIdentStart(t.runeAt(t.pos)):
			t.ident()
		default:
			if err := t.punct(); err != nil {
				return err
			}
		}
	}
	if len(t.braces) > 0 {
		if t.braces[len(t.braces)-1] == '`' {
			return t.fail("unterminated template literal")
		}
		return t.fail("unbalanced brackets")
	}
	return nil
}

func (t *tokenizer) peek(n int) byte {
	if t.pos+n < len(t.src) {
		return t.src[t.pos+n]
	}
	return 0
}

func (t *tokenizer) runeAt(i int) rune {
	r, _ := utf8.DecodeRune(t.src[i:])
	return r
}

func (t *tokenizer) emit(kind tokenKind, start, end int) {
	t.out = append(t.out, token{kind: kind, text: string(t.src[start:end]), pos: start})
}

func (t *tokenizer) skipLine() {
	for t.pos < len(t.src) && t.src[t.pos] != '\n' {
		t.pos++
	}
}

func (t *tokenizer) skipBlock() error {
	end := bytes.Index(t.src[t.pos+2:], []byte("*/"))
	if end < 0 {
		return t.fail("unterminated comment")
	}
	t.pos += end + 4
	return nil
}

func (t *tokenizer) str(quote byte) error {
	start := t.pos
	t.pos++
	for t.pos < len(t.src) {
		switch t.src[t.pos] {
		case '\\':
			t.pos += 2
		case '\n':
			return t.fail("unterminated string")
		case quote:
			t.emit(tokString, start+1, t.pos)
			t.pos++
			return nil
		default:
			t.pos++
		}
	}
	return t.fail("unterminated string")
}

// template consumes template text up to the closing backtick or the next
// substitution, whose expression is then tokenized like regular code.
func (t *tokenizer) template() error {
	for t.pos < len(t.src) {
		switch t.src[t.pos] {
		case '\\':
			t.pos += 2
		case '`':
			t.pos++
			t.out = append(t.out, token{kind: tokTemplate, text: "`", pos: t.pos - 1})
			return nil
		case '$':
			if t.peek(1) == '{' {
				t.pos += 2
				t.braces = append(t.braces, '`')
				return nil
			}
			t.pos++
		default:
			t.pos++
		}
	}
	t.braces = append(t.braces, '`')
	return nil
}

func (t *tokenizer) regexAllowed() bool {
	if len(t.out) == 0 {
		return true
	}
	prev := t.out[len(t.out)-1]
	switch prev.kind {
	case tokIdent:
		return regexAfter[prev.text]
	case tokNumber, tokString, tokRegex, tokTemplate:
		return false
	default:
		return prev.text != ")" && prev.text != "]" && prev.text != "}"
	}
}

func (t *tokenizer) regex() error {
	start := t.pos
	t.pos++
	inClass := false
	for t.pos < len(t.src) {
		switch c := t.src[t.pos]; {
		case c == '\\':
			t.pos += 2
			continue
		case c == '\n':
			return t.fail("unterminated regular expression")
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			t.pos++
			for t.pos < len(t.src) && isIdentPart(t.runeAt(t.pos)) {
				t.pos++
			}
			t.emit(tokRegex, start, t.pos)
			return nil
		}
		t.pos++
	}
	return t.fail("unterminated regular expression")
}

func (t *tokenizer) number() {
	start := t.pos
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		if isDigit(c) || c == '.' || c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			t.pos++
			continue
		}
		break
	}
	t.emit(tokNumber, start, t.pos)
}

func (t *tokenizer) ident() {
	start := t.pos
	for t.pos < len(t.src) {
		r, size := utf8.DecodeRune(t.src[t.pos:])
		if !isIdentPart(r) {
			break
		}
		t.pos += size
	}
	t.emit(tokIdent, start, t.pos)
}

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

func (t *tokenizer) punct() error {
	c := t.src[t.pos]
	switch c {
	case '(', '[', '{':
		t.braces = append(t.braces, c)
	case ')', ']', '}':
		if len(t.braces) == 0 {
			return t.fail("unbalanced brackets")
		}
		top := t.braces[len(t.braces)-1]
		t.braces = t.braces[:len(t.braces)-1]
		if c == '}' && top == '`' {
			t.pos++
			return t.template()
		}
		if top != closers[c] {
			return t.fail("unbalanced brackets")
		}
	case '=':
		if n := t.peek(1); n == '=' || n == '>' {
			end := t.pos + 2
			if n == '=' && t.peek(2) == '=' {
				end++
			}
			t.emit(tokPunct, t.pos, end)
			t.pos = end
			return nil
		}
	case '?':
		if t.peek(1) == '.' && !isDigit(t.peek(2)) {
			t.emit(tokPunct, t.pos, t.pos+2)
			t.pos += 2
			return nil
		}
	case '.':
		if t.peek(1) == '.' && t.peek(2) == '.' {
			t.emit(tokPunct, t.pos, t.pos+3)
			t.pos += 3
			return nil
		}
	}
	_, size := utf8.DecodeRune(t.src[t.pos:])
	t.emit(tokPunct, t.pos, t.pos+size)
	t.pos += size
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(r rune) bool {
	return r == '$' || r == '_' || r == '#' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '\u200c' || r == '\u200d'
}

