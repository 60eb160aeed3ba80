package memory

import "fmt"

// Visibility controls which blocks can discover a cell through Search.
type Visibility string

const (
	// Private cells are visible to their owner only. This is the default.
	Private Visibility = "private"

	// Public cells are visible to any searcher, including external readers
	// such as the status API.
	Public Visibility = "public"

	// Inherited cells are visible to their owner and to any descendant of the
	// owner that is currently on the active chain. Used for data flowing down
	// the stack, e.g. the current rep-scheme target.
	Inherited Visibility = "inherited"
)

// ParseVisibility validates a visibility string.
// Empty defaults to Private.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case Private, Public, Inherited:
		return Visibility(s), nil
	case "":
		return Private, nil
	default:
		return "", fmt.Errorf("invalid visibility %q: must be private, public, or inherited", s)
	}
}

// Lineage answers ancestry questions about blocks on the active chain.
// The runtime installs one so inherited cells resolve against the live stack.
type Lineage interface {
	IsAncestor(ancestor, descendant string) bool
}

// LineageFunc adapts a function to the Lineage interface.
type LineageFunc func(ancestor, descendant string) bool

func (f LineageFunc) IsAncestor(ancestor, descendant string) bool {
	return f(ancestor, descendant)
}

// visibleTo reports whether a cell can be seen by requester.
// An empty requester is an external reader and sees public and inherited cells.
func visibleTo(ref Reference, requester string, lineage Lineage) bool {
	switch ref.Visibility {
	case Public:
		return true
	case Inherited:
		if requester == "" || requester == ref.OwnerID {
			return true
		}
		return lineage != nil && lineage.IsAncestor(ref.OwnerID, requester)
	default:
		return requester != "" && requester == ref.OwnerID
	}
}
