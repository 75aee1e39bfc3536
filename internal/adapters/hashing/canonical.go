// Package hashing implements canonical hashing of structured values with BLAKE3.
//
// The canonical form is a JSON-like text: object keys are sorted, nil object
// members are omitted, arrays keep their order, strings are quoted with Go
// escaping and numbers use one fixed textual form.
package hashing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"unicode/utf8"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// normalize turns v into the generic tree encoding/json produces, keeping
// number literals intact so they can be canonicalized.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrHashFailed.Error())
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, zerr.Wrap(err, domain.ErrHashFailed.Error())
	}
	return out, nil
}

// canonicalNumber returns the fixed textual form of a JSON number literal.
func canonicalNumber(lit string) (string, error) {
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	if u, err := strconv.ParseUint(lit, 10, 64); err == nil {
		return strconv.FormatUint(u, 10), nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrHashFailed.Error()), "number", lit)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

// floatLiteral renders a float32 or float64 the way encoding/json would.
func floatLiteral(f any) (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", zerr.Wrap(err, domain.ErrHashFailed.Error())
	}
	return string(data), nil
}

// validString replaces each invalid UTF-8 byte with U+FFFD, as encoding/json does.
func validString(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b []byte
	for _, r := range s {
		b = utf8.AppendRune(b, r)
	}
	return string(b)
}

// writer emits canonical text for normalized trees.
type writer struct {
	w       io.Writer
	scratch []byte
}

func (cw *writer) raw(s string) error {
	_, err := io.WriteString(cw.w, s)
	return err
}

func (cw *writer) str(s string) error {
	cw.scratch = strconv.AppendQuote(cw.scratch[:0], validString(s))
	_, err := cw.w.Write(cw.scratch)
	return err
}

func (cw *writer) number(lit string) error {
	n, err := canonicalNumber(lit)
	if err != nil {
		return err
	}
	return cw.raw(n)
}

// value writes a tree made of the types encoding/json decodes into.
func (cw *writer) value(v any) error {
	switch val := v.(type) {
	case nil:
		return cw.raw("null")
	case bool:
		return cw.raw(strconv.FormatBool(val))
	case json.Number:
		return cw.number(val.String())
	case string:
		return cw.str(val)
	case []any:
		return cw.array(len(val), func(i int) any { return val[i] })
	case map[string]any:
		return cw.object(val)
	default:
		return zerr.With(domain.ErrHashFailed, "type", fmt.Sprintf("%T", v))
	}
}

func (cw *writer) array(n int, at func(int) any) error {
	if err := cw.raw("["); err != nil {
		return err
	}
	for i := range n {
		if i > 0 {
			if err := cw.raw(","); err != nil {
				return err
			}
		}
		if err := cw.value(at(i)); err != nil {
			return err
		}
	}
	return cw.raw("]")
}

func (cw *writer) object(m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != nil {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	if err := cw.raw("{"); err != nil {
		return err
	}
	for i, k := range keys {
		if i > 0 {
			if err := cw.raw(","); err != nil {
				return err
			}
		}
		if err := cw.str(k); err != nil {
			return err
		}
		if err := cw.raw(":"); err != nil {
			return err
		}
		if err := cw.value(m[k]); err != nil {
			return err
		}
	}
	return cw.raw("}")
}
