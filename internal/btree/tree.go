package btree

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tuannm99/pagedb/internal/bufferpool"
)

var (
	ErrKeyNotFound  = errors.New("btree: key not found")
	ErrUnbalanced   = errors.New("btree: sibling sizes diverged after split")
	ErrLeafChildren = errors.New("btree: leaf must keep one child per key plus the next-leaf pointer")
)

// Tree is a B+-tree over integer keys mapping to record ids. All nodes
// live in pages reached through the buffer pool; the struct itself
// only tracks the current root id, which moves upward as the root
// splits.
type Tree struct {
	pool   *bufferpool.Pool
	rootID string
}

// New opens the tree rooted at rootID, creating an empty leaf root if
// the page does not exist yet. Persisting RootID externally allows
// reopening the same tree later.
func New(pool *bufferpool.Pool, rootID string) (*Tree, error) {
	if !pool.Exists(rootID) {
		if _, err := CreateNode(pool, rootID, NoParent, true); err != nil {
			return nil, err
		}
	}
	return &Tree{pool: pool, rootID: rootID}, nil
}

// RootID returns the current root page id.
func (t *Tree) RootID() string {
	return t.rootID
}

// findLeaf descends to the leaf responsible for key: at each internal
// node it follows the child before the first key greater than the
// search key, so equal keys route right.
func (t *Tree) findLeaf(key int32) (*Node, error) {
	current := OpenNode(t.pool, t.rootID)

	for {
		leaf, err := current.IsLeaf()
		if err != nil {
			return nil, err
		}
		if leaf {
			return current, nil
		}

		keys, err := current.Keys()
		if err != nil {
			return nil, err
		}
		children, err := current.Children()
		if err != nil {
			return nil, err
		}

		idx := sort.Search(len(keys), func(i int) bool { return key < keys[i] })
		current = OpenNode(t.pool, children[idx])
	}
}

// Search returns the record id stored under key, or ErrKeyNotFound.
func (t *Tree) Search(key int32) (string, error) {
	leaf, err := t.findLeaf(key)
	if err != nil {
		return "", err
	}

	keys, err := leaf.Keys()
	if err != nil {
		return "", err
	}
	children, err := leaf.Children()
	if err != nil {
		return "", err
	}

	for i, k := range keys {
		if k == key {
			return children[i], nil
		}
	}
	return "", fmt.Errorf("%w: %d", ErrKeyNotFound, key)
}

// Insert stores (key, recordID) and propagates splits upward, growing
// a new root when the old one overflows.
func (t *Tree) Insert(key int32, recordID string) error {
	leaf, err := t.findLeaf(key)
	if err != nil {
		return err
	}

	split, err := leaf.InsertRecord(key, recordID)
	if err != nil {
		return err
	}
	if split == nil {
		return nil
	}
	if err := t.checkSplit(leaf, split.Right, true); err != nil {
		return err
	}

	current, child, median := leaf, split.Right, split.Key

	for {
		parentID, err := current.ParentID()
		if err != nil {
			return err
		}

		if parentID == NoParent {
			// the root itself split: grow the tree by one level
			newRootID, err := t.pool.Allocate()
			if err != nil {
				return err
			}
			newRoot, err := CreateNode(t.pool, newRootID, NoParent, false)
			if err != nil {
				return err
			}
			if err := current.SetParentID(newRootID); err != nil {
				return err
			}
			if err := child.SetParentID(newRootID); err != nil {
				return err
			}
			if _, err := newRoot.InsertValue(median, current.ID(), child.ID()); err != nil {
				return err
			}

			t.rootID = newRootID
			slog.Debug("btree.rootGrown", "root", newRootID)
			return nil
		}

		parent := OpenNode(t.pool, parentID)
		if err := child.SetParentID(parentID); err != nil {
			return err
		}

		split, err := parent.InsertValue(median, current.ID(), child.ID())
		if err != nil {
			return err
		}
		if split == nil {
			return nil
		}
		if err := t.checkSplit(parent, split.Right, false); err != nil {
			return err
		}

		current, child, median = parent, split.Right, split.Key
	}
}

// checkSplit verifies the balance condition after every split: the
// halves differ by at most one key, and a split leaf keeps exactly one
// child per key plus its next-leaf pointer.
func (t *Tree) checkSplit(left, right *Node, leaf bool) error {
	leftKeys, err := left.Keys()
	if err != nil {
		return err
	}
	rightKeys, err := right.Keys()
	if err != nil {
		return err
	}

	diff := len(rightKeys) - len(leftKeys)
	if diff < 0 {
		diff = -diff
	}
	if diff > 1 {
		return fmt.Errorf("%w: %d vs %d keys", ErrUnbalanced, len(leftKeys), len(rightKeys))
	}

	if leaf {
		leftChildren, err := left.Children()
		if err != nil {
			return err
		}
		if len(leftChildren) != len(leftKeys)+1 {
			return fmt.Errorf("%w: %s", ErrLeafChildren, left.ID())
		}
	}
	return nil
}

// Erase deletes every page reachable from the root. A leaf's children
// are record ids and its trailing pointer names a sibling reached via
// the internal levels anyway, so only internal children are followed.
func (t *Tree) Erase() error {
	return t.eraseNode(t.rootID)
}

func (t *Tree) eraseNode(id string) error {
	node := OpenNode(t.pool, id)

	leaf, err := node.IsLeaf()
	if err != nil {
		return err
	}
	if !leaf {
		children, err := node.Children()
		if err != nil {
			return err
		}
		for _, childID := range children {
			if err := t.eraseNode(childID); err != nil {
				return err
			}
		}
	}
	return t.pool.Erase(id)
}
