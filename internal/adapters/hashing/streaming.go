package hashing

import (
	"bufio"
	"cmp"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strconv"
	"sync"
	"unicode/utf8"

	"go.trai.ch/kiln/internal/core/ports"
	"lukechampine.com/blake3"
)

var _ ports.Hasher = (*Streaming)(nil)

const digestSize = 32

// Streaming writes the canonical text straight into a pooled BLAKE3 hasher.
// Maps, slices and scalars are walked directly; other values go through the
// same normalization as Portable, so both produce identical digests.
type Streaming struct {
	pool sync.Pool
}

type streamState struct {
	hasher *blake3.Hasher
	buf    *bufio.Writer
	cw     writer
}

// NewStreaming creates a new Streaming hasher.
func NewStreaming() *Streaming {
	s := &Streaming{}
	s.pool.New = func() any {
		h := blake3.New(digestSize, nil)
		st := &streamState{hasher: h, buf: bufio.NewWriterSize(h, 4096)}
		st.cw.w = st.buf
		return st
	}
	return s
}

// CanonicalHash returns the BLAKE3-256 digest of the canonical serialization of v.
func (s *Streaming) CanonicalHash(v any) (string, error) {
	st := s.pool.Get().(*streamState) //nolint:forcetypeassert // pool only holds streamState
	defer s.pool.Put(st)

	st.hasher.Reset()
	st.buf.Reset(st.hasher)

	if err := st.value(v); err != nil {
		return "", err
	}
	if err := st.buf.Flush(); err != nil {
		return "", err
	}
	return hex.EncodeToString(st.hasher.Sum(nil)), nil
}

func (st *streamState) value(v any) error {
	cw := &st.cw
	switch val := v.(type) {
	case nil:
		return cw.raw("null")
	case bool:
		return cw.raw(strconv.FormatBool(val))
	case string:
		return cw.str(val)
	case json.Number:
		return cw.number(val.String())
	case int:
		return cw.number(strconv.FormatInt(int64(val), 10))
	case int8:
		return cw.number(strconv.FormatInt(int64(val), 10))
	case int16:
		return cw.number(strconv.FormatInt(int64(val), 10))
	case int32:
		return cw.number(strconv.FormatInt(int64(val), 10))
	case int64:
		return cw.number(strconv.FormatInt(val, 10))
	case uint:
		return cw.number(strconv.FormatUint(uint64(val), 10))
	case uint8:
		return cw.number(strconv.FormatUint(uint64(val), 10))
	case uint16:
		return cw.number(strconv.FormatUint(uint64(val), 10))
	case uint32:
		return cw.number(strconv.FormatUint(uint64(val), 10))
	case uint64:
		return cw.number(strconv.FormatUint(val, 10))
	case float32, float64:
		lit, err := floatLiteral(val)
		if err != nil {
			return err
		}
		return cw.number(lit)
	case []any:
		if val == nil {
			return cw.raw("null")
		}
		return st.array(len(val), func(i int) any { return val[i] })
	case []string:
		if val == nil {
			return cw.raw("null")
		}
		return st.array(len(val), func(i int) any { return val[i] })
	case map[string]any:
		if val == nil {
			return cw.raw("null")
		}
		if !validKeys(val) {
			return st.slow(val)
		}
		return st.object(len(val), func(yield func(string, any) bool) {
			for k, v := range val {
				if !yield(k, v) {
					return
				}
			}
		})
	case map[string]string:
		if val == nil {
			return cw.raw("null")
		}
		if !validKeys(val) {
			return st.slow(val)
		}
		return st.object(len(val), func(yield func(string, any) bool) {
			for k, v := range val {
				if !yield(k, v) {
					return
				}
			}
		})
	default:
		return st.slow(v)
	}
}

func (st *streamState) slow(v any) error {
	tree, err := normalize(v)
	if err != nil {
		return err
	}
	return st.cw.value(tree)
}

func (st *streamState) array(n int, at func(int) any) error {
	if err := st.cw.raw("["); err != nil {
		return err
	}
	for i := range n {
		if i > 0 {
			if err := st.cw.raw(","); err != nil {
				return err
			}
		}
		if err := st.value(at(i)); err != nil {
			return err
		}
	}
	return st.cw.raw("]")
}

type member struct {
	key string
	val any
}

func (st *streamState) object(n int, each func(yield func(string, any) bool)) error {
	members := make([]member, 0, n)
	var err error
	each(func(k string, v any) bool {
		if !isFast(v) {
			v, err = normalize(v)
			if err != nil {
				return false
			}
		}
		if !isNull(v) {
			members = append(members, member{key: k, val: v})
		}
		return true
	})
	if err != nil {
		return err
	}
	slices.SortFunc(members, func(a, b member) int {
		return cmp.Compare(a.key, b.key)
	})

	if err := st.cw.raw("{"); err != nil {
		return err
	}
	for i, m := range members {
		if i > 0 {
			if err := st.cw.raw(","); err != nil {
				return err
			}
		}
		if err := st.cw.str(m.key); err != nil {
			return err
		}
		if err := st.cw.raw(":"); err != nil {
			return err
		}
		if err := st.value(m.val); err != nil {
			return err
		}
	}
	return st.cw.raw("}")
}

func isFast(v any) bool {
	switch v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		[]any, []string, map[string]any, map[string]string:
		return true
	default:
		return false
	}
}

func isNull(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case []any:
		return val == nil
	case []string:
		return val == nil
	case map[string]any:
		return val == nil
	case map[string]string:
		return val == nil
	default:
		return false
	}
}

func validKeys[V any](m map[string]V) bool {
	for k := range m {
		if !utf8.ValidString(k) {
			return false
		}
	}
	return true
}
