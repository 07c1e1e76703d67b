package resolver

import (
	"fmt"
	"strings"
)

// Kind identifies the shape of a Selector.
type Kind int

const (
	KindAll Kind = iota
	KindCommaList
	KindWildcardPrefix
	KindExplicitList
	KindIDToSubItems
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindAll:
		return "all"
	case KindCommaList:
		return "comma_list"
	case KindWildcardPrefix:
		return "wildcard_prefix"
	case KindExplicitList:
		return "explicit_list"
	case KindIDToSubItems:
		return "id_to_sub_items"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Selector describes which entities a bulk operation acts on. Build one with
// All, CommaList, WildcardPrefix, ExplicitList, IDToSubItems, File or
// ParseSelector.
type Selector struct {
	Kind     Kind
	Value    string              // comma list, prefix or file path
	List     []string            // explicit identifiers
	SubItems map[string][]string // identifier -> sub-item identifiers
}

func All() Selector { return Selector{Kind: KindAll} }

func CommaList(s string) Selector { return Selector{Kind: KindCommaList, Value: s} }

// WildcardPrefix selects listed entities starting with prefix. A trailing
// "*" is stripped.
func WildcardPrefix(prefix string) Selector {
	return Selector{Kind: KindWildcardPrefix, Value: strings.TrimSuffix(prefix, "*")}
}

func ExplicitList(ids ...string) Selector { return Selector{Kind: KindExplicitList, List: ids} }

// IDToSubItems selects the keys of m and carries each value forward as the
// sub-item filter of its unit.
func IDToSubItems(m map[string][]string) Selector {
	return Selector{Kind: KindIDToSubItems, SubItems: m}
}

// File selects the identifiers listed one per line in a text file.
func File(path string) Selector { return Selector{Kind: KindFile, Value: path} }

// ParseSelector maps the command line form of a selector: "all", a trailing
// "*" wildcard, a ".txt" file of identifiers, or comma-delimited identifiers.
func ParseSelector(s string) Selector {
	s = strings.TrimSpace(s)
	switch {
	case s == "all":
		return All()
	case strings.HasSuffix(s, "*"):
		return WildcardPrefix(s)
	case strings.HasSuffix(s, ".txt"):
		return File(s)
	default:
		return CommaList(s)
	}
}

// String renders the selector the way it would be typed on the command line.
func (s Selector) String() string {
	switch s.Kind {
	case KindAll:
		return "all"
	case KindWildcardPrefix:
		return s.Value + "*"
	case KindCommaList, KindFile:
		return s.Value
	case KindExplicitList:
		return strings.Join(s.List, ",")
	case KindIDToSubItems:
		return strings.Join(sortedKeys(s.SubItems), ",")
	default:
		return s.Kind.String()
	}
}

// Unit is one resolved entity.
type Unit struct {
	ID       string
	SubItems []string
}

// ResolvedSet is the ordered result of resolving a selector.
type ResolvedSet struct {
	Units []Unit
	// FromListing is true when the units came from a full server listing
	// rather than caller-supplied identifiers.
	FromListing bool
}

// IDs returns the identifiers of the resolved units, in order.
func (r ResolvedSet) IDs() []string {
	ids := make([]string, len(r.Units))
	for i, u := range r.Units {
		ids[i] = u.ID
	}
	return ids
}
