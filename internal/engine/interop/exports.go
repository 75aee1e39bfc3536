package interop

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// ParseExports decodes a package.json "exports" value keeping the order of
// object keys, which decides condition priority. JSON is valid YAML, so the
// YAML node tree carries the document order.
func ParseExports(raw json.RawMessage) (*yaml.Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		return nil, zerr.Wrap(err, "invalid exports field")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(indented.Bytes(), &doc); err != nil {
		return nil, zerr.Wrap(err, "invalid exports field")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	return doc.Content[0], nil
}

// ConditionalTarget is the outcome of resolving a package subpath through
// its exports map.
type ConditionalTarget struct {
	// Path is the package-relative target, e.g. "./dist/index.mjs".
	Path string
	// Conditions is the chain of condition keys that selected Path, outermost
	// first. It is empty when the entry was a plain string.
	Conditions []string
}

// Condition returns the selected condition chain joined by dots.
func (t ConditionalTarget) Condition() string {
	return strings.Join(t.Conditions, ".")
}

// ResolveConditionalExports selects the target of subpath ("." or "./x")
// from an exports value. Object keys are tried in document order; "default"
// always matches and any other key matches when it is one of conditions.
// Arrays are fallback lists. A null target excludes the subpath.
func ResolveConditionalExports(exports *yaml.Node, subpath string, conditions []string) (ConditionalTarget, bool) {
	if exports == nil {
		return ConditionalTarget{}, false
	}

	if isSubpathMap(exports) {
		m, ok := matchSubpath(exports, subpath)
		if !ok {
			return ConditionalTarget{}, false
		}
		target, ok := selectTarget(m.value, conditions, nil)
		if !ok {
			return ConditionalTarget{}, false
		}
		if m.pattern {
			target.Path = strings.ReplaceAll(target.Path, "*", m.wildcard)
		}
		return target, true
	}

	if subpath != "." {
		return ConditionalTarget{}, false
	}
	return selectTarget(exports, conditions, nil)
}

func isSubpathMap(n *yaml.Node) bool {
	if n.Kind != yaml.MappingNode || len(n.Content) == 0 {
		return false
	}
	return strings.HasPrefix(n.Content[0].Value, ".")
}

type subpathMatch struct {
	value    *yaml.Node
	pattern  bool
	wildcard string
}

// matchSubpath finds the entry for subpath: an exact key first, then the
// pattern key with the longest prefix before its "*".
func matchSubpath(m *yaml.Node, subpath string) (subpathMatch, bool) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == subpath {
			return subpathMatch{value: m.Content[i+1]}, true
		}
	}

	best := subpathMatch{}
	bestPrefix := -1
	for i := 0; i+1 < len(m.Content); i += 2 {
		key := m.Content[i].Value
		star := strings.IndexByte(key, '*')
		if star < 0 {
			continue
		}
		prefix, suffix := key[:star], key[star+1:]
		if len(subpath) < len(prefix)+len(suffix) ||
			!strings.HasPrefix(subpath, prefix) || !strings.HasSuffix(subpath, suffix) {
			continue
		}
		if len(prefix) > bestPrefix {
			bestPrefix = len(prefix)
			best = subpathMatch{
				value:    m.Content[i+1],
				pattern:  true,
				wildcard: subpath[len(prefix) : len(subpath)-len(suffix)],
			}
		}
	}
	return best, bestPrefix >= 0
}

func selectTarget(n *yaml.Node, conditions []string, chain []string) (ConditionalTarget, bool) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return ConditionalTarget{}, false
		}
		return ConditionalTarget{Path: n.Value, Conditions: chain}, true
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if target, ok := selectTarget(item, conditions, chain); ok {
				return target, true
			}
		}
		return ConditionalTarget{}, false
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if key != "default" && !slices.Contains(conditions, key) {
				continue
			}
			next := append(append([]string(nil), chain...), key)
			if target, ok := selectTarget(n.Content[i+1], conditions, next); ok {
				return target, true
			}
		}
		return ConditionalTarget{}, false
	default:
		return ConditionalTarget{}, false
	}
}

// FormatForCondition maps the innermost format-bearing condition of a chain
// to a module format.
func FormatForCondition(conditions []string) (domain.ModuleFormat, bool) {
	for i := len(conditions) - 1; i >= 0; i-- {
		switch conditions[i] {
		case "import", "module":
			return domain.FormatESM, true
		case "require":
			return domain.FormatCJS, true
		}
	}
	return domain.FormatUnknown, false
}
