package btree

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/tuannm99/pagedb/internal/bufferpool"
	"github.com/tuannm99/pagedb/internal/record"
	"github.com/tuannm99/pagedb/internal/storage"
)

const (
	// MaxKeys and MaxChildren bound a node. A leaf may carry one child
	// beyond its key count: the trailing next-leaf pointer.
	MaxKeys     = 29
	MaxChildren = 30

	// NoParent marks the root's parent slot.
	NoParent = "-----"

	// fixed record slots within a node page
	slotParent     = 0
	slotLeaf       = 1
	slotKeyCount   = 2
	slotFirstKey   = 3
	slotChildCount = slotFirstKey + MaxKeys
	slotFirstChild = slotChildCount + 1
)

var (
	ErrDuplicateKey  = errors.New("btree: duplicate key")
	ErrTooManyKeys   = errors.New("btree: more keys than a node can hold")
	ErrTooManyChilds = errors.New("btree: more children than a node can hold")
	ErrUnsortedKeys  = errors.New("btree: keys must be sorted ascending")
	ErrNodeExists    = errors.New("btree: node page already initialized")
)

// Node views one page as an index node. All state lives in the page;
// the struct only carries the id and the pool to reach it through.
type Node struct {
	pool *bufferpool.Pool
	id   string
}

// Split reports the outcome of an insertion that overflowed a node:
// the freshly allocated right sibling and the separator key to push
// into the parent.
type Split struct {
	Right *Node
	Key   int32
}

// OpenNode wraps an existing node page.
func OpenNode(pool *bufferpool.Pool, id string) *Node {
	return &Node{pool: pool, id: id}
}

// CreateNode lays out the fixed node schema on a fresh page: parent id,
// leaf flag, key count, 29 dummy keys, child count, 30 dummy children.
// Keys and children are mutated in place afterwards.
func CreateNode(pool *bufferpool.Pool, id, parentID string, leaf bool) (*Node, error) {
	page, err := pool.Pin(id)
	if err != nil {
		return nil, err
	}
	defer pool.Unpin(id)

	// a page that is already on disk is not ours to initialize
	if !page.IsDirty() {
		return nil, fmt.Errorf("%w: %s", ErrNodeExists, id)
	}

	add := func(attrs []any) error {
		_, err := page.AddRecord(attrs)
		return err
	}

	if err := add([]any{parentID}); err != nil {
		return nil, fmt.Errorf("node %s: parent id: %w", id, err)
	}
	if err := add([]any{leaf}); err != nil {
		return nil, fmt.Errorf("node %s: leaf flag: %w", id, err)
	}
	if err := add([]any{int32(0)}); err != nil {
		return nil, fmt.Errorf("node %s: key count: %w", id, err)
	}
	for range MaxKeys {
		if err := add([]any{int32(-1)}); err != nil {
			return nil, fmt.Errorf("node %s: dummy key: %w", id, err)
		}
	}
	if err := add([]any{int32(0)}); err != nil {
		return nil, fmt.Errorf("node %s: child count: %w", id, err)
	}
	for range MaxChildren {
		if err := add([]any{strings.Repeat("0", record.IDSize)}); err != nil {
			return nil, fmt.Errorf("node %s: dummy child: %w", id, err)
		}
	}

	return &Node{pool: pool, id: id}, nil
}

// ID returns the page id backing this node.
func (n *Node) ID() string {
	return n.id
}

func (n *Node) readString(slot int) (string, error) {
	var out string
	err := n.withPage(func(page *storage.Page) error {
		rec, err := n.slotRecord(page, slot)
		if err != nil {
			return err
		}
		out, err = rec.StringAt(1)
		return err
	})
	return out, err
}

func (n *Node) withPage(fn func(*storage.Page) error) error {
	page, err := n.pool.Pin(n.id)
	if err != nil {
		return err
	}
	defer n.pool.Unpin(n.id)
	return fn(page)
}

func (n *Node) slotRecord(page *storage.Page, slot int) (*record.Record, error) {
	recordID, err := storage.CreateRecordID(n.id, slot)
	if err != nil {
		return nil, err
	}
	return page.Record(recordID)
}

func (n *Node) putSlot(page *storage.Page, slot int, attr any) error {
	recordID, err := storage.CreateRecordID(n.id, slot)
	if err != nil {
		return err
	}
	rec, err := record.New(recordID, []any{attr})
	if err != nil {
		return err
	}
	return page.UpdateRecord(rec)
}

// ParentID reads the parent page id, NoParent for the root.
func (n *Node) ParentID() (string, error) {
	return n.readString(slotParent)
}

// IsLeaf reads the leaf flag.
func (n *Node) IsLeaf() (bool, error) {
	var leaf bool
	err := n.withPage(func(page *storage.Page) error {
		rec, err := n.slotRecord(page, slotLeaf)
		if err != nil {
			return err
		}
		leaf, err = rec.BoolAt(1)
		return err
	})
	return leaf, err
}

// Keys returns the valid keys in ascending order.
func (n *Node) Keys() ([]int32, error) {
	var keys []int32
	err := n.withPage(func(page *storage.Page) error {
		countRec, err := n.slotRecord(page, slotKeyCount)
		if err != nil {
			return err
		}
		count, err := countRec.IntAt(1)
		if err != nil {
			return err
		}

		keys = make([]int32, 0, count)
		for i := range int(count) {
			rec, err := n.slotRecord(page, slotFirstKey+i)
			if err != nil {
				return err
			}
			k, err := rec.IntAt(1)
			if err != nil {
				return err
			}
			keys = append(keys, k)
		}
		return nil
	})
	return keys, err
}

// Children returns the valid child ids: page ids in an internal node,
// record ids in a leaf (plus an optional trailing next-leaf page id).
func (n *Node) Children() ([]string, error) {
	var children []string
	err := n.withPage(func(page *storage.Page) error {
		countRec, err := n.slotRecord(page, slotChildCount)
		if err != nil {
			return err
		}
		count, err := countRec.IntAt(1)
		if err != nil {
			return err
		}

		children = make([]string, 0, count)
		for i := range int(count) {
			rec, err := n.slotRecord(page, slotFirstChild+i)
			if err != nil {
				return err
			}
			c, err := rec.StringAt(1)
			if err != nil {
				return err
			}
			children = append(children, c)
		}
		return nil
	})
	return children, err
}

// SetParentID rewrites the parent pointer.
func (n *Node) SetParentID(parentID string) error {
	return n.withPage(func(page *storage.Page) error {
		return n.putSlot(page, slotParent, parentID)
	})
}

// SetKeys rewrites the key count and the key slots. The input must be
// sorted and fit the node.
func (n *Node) SetKeys(keys []int32) error {
	if len(keys) > MaxKeys {
		return fmt.Errorf("%w: %d", ErrTooManyKeys, len(keys))
	}
	if !slices.IsSorted(keys) {
		return fmt.Errorf("%w: node %s", ErrUnsortedKeys, n.id)
	}

	return n.withPage(func(page *storage.Page) error {
		if err := n.putSlot(page, slotKeyCount, int32(len(keys))); err != nil {
			return err
		}
		for i, k := range keys {
			if err := n.putSlot(page, slotFirstKey+i, k); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetChildren rewrites the child count and the child slots.
func (n *Node) SetChildren(children []string) error {
	if len(children) > MaxChildren {
		return fmt.Errorf("%w: %d", ErrTooManyChilds, len(children))
	}

	return n.withPage(func(page *storage.Page) error {
		if err := n.putSlot(page, slotChildCount, int32(len(children))); err != nil {
			return err
		}
		for i, c := range children {
			if err := n.putSlot(page, slotFirstChild+i, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// lowerBound returns the first index whose key is >= key: the position
// at which key is inserted to keep the keys sorted. Descent in Tree
// uses its own search, which routes equal keys to the right subtree.
func lowerBound(keys []int32, key int32) int {
	return sort.Search(len(keys), func(i int) bool { return keys[i] >= key })
}

// InsertRecord adds (key, recordID) to a leaf, keeping keys sorted.
// A duplicate key fails before any mutation. When the leaf reaches
// MaxKeys it splits: the upper half moves to a new sibling leaf, the
// old leaf's trailing child becomes the sibling's page id, and the
// separator (the sibling's first key, which stays stored there) is
// returned for the parent.
func (n *Node) InsertRecord(key int32, recordID string) (*Split, error) {
	keys, err := n.Keys()
	if err != nil {
		return nil, err
	}
	children, err := n.Children()
	if err != nil {
		return nil, err
	}

	if _, found := slices.BinarySearch(keys, key); found {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateKey, key)
	}

	// detach the next-leaf pointer while keys and record ids are paired up
	nextLeaf := ""
	if len(children) == len(keys)+1 {
		nextLeaf = children[len(children)-1]
		children = children[:len(children)-1]
	}

	idx := lowerBound(keys, key)
	keys = slices.Insert(keys, idx, key)
	children = slices.Insert(children, idx, recordID)

	if len(keys) < MaxKeys {
		if nextLeaf != "" {
			children = append(children, nextLeaf)
		}
		if err := n.SetKeys(keys); err != nil {
			return nil, err
		}
		if err := n.SetChildren(children); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// split
	parentID, err := n.ParentID()
	if err != nil {
		return nil, err
	}
	siblingID, err := n.pool.Allocate()
	if err != nil {
		return nil, err
	}
	sibling, err := CreateNode(n.pool, siblingID, parentID, true)
	if err != nil {
		return nil, err
	}

	m := len(keys) / 2
	rightKeys := slices.Clone(keys[m:])
	rightChildren := slices.Clone(children[m:])
	if nextLeaf != "" {
		rightChildren = append(rightChildren, nextLeaf)
	}

	leftKeys := keys[:m]
	leftChildren := append(children[:m], siblingID)

	if err := n.SetKeys(leftKeys); err != nil {
		return nil, err
	}
	if err := n.SetChildren(leftChildren); err != nil {
		return nil, err
	}
	if err := sibling.SetKeys(rightKeys); err != nil {
		return nil, err
	}
	if err := sibling.SetChildren(rightChildren); err != nil {
		return nil, err
	}

	slog.Debug("btree.leafSplit",
		"node", n.id,
		"sibling", siblingID,
		"separator", rightKeys[0],
	)
	return &Split{Right: sibling, Key: rightKeys[0]}, nil
}

// InsertValue adds (key, right child) to an internal node after a
// child split; left must already sit at the insertion index (unless
// the node is freshly empty, in which case both are installed). On
// overflow the node splits around the median, which moves up and is
// excluded from both halves; children shifted into the new sibling are
// reparented.
func (n *Node) InsertValue(key int32, leftID, rightID string) (*Split, error) {
	keys, err := n.Keys()
	if err != nil {
		return nil, err
	}
	children, err := n.Children()
	if err != nil {
		return nil, err
	}

	idx := lowerBound(keys, key)
	keys = slices.Insert(keys, idx, key)
	if len(children) == 0 {
		children = []string{leftID, rightID}
	} else {
		children = slices.Insert(children, idx+1, rightID)
	}

	if len(keys) < MaxKeys {
		if err := n.SetKeys(keys); err != nil {
			return nil, err
		}
		if err := n.SetChildren(children); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// split around the median
	parentID, err := n.ParentID()
	if err != nil {
		return nil, err
	}
	siblingID, err := n.pool.Allocate()
	if err != nil {
		return nil, err
	}
	sibling, err := CreateNode(n.pool, siblingID, parentID, false)
	if err != nil {
		return nil, err
	}

	m := len(keys) / 2
	median := keys[m]
	rightKeys := slices.Clone(keys[m+1:])
	rightChildren := slices.Clone(children[m+1:])

	if err := n.SetKeys(keys[:m]); err != nil {
		return nil, err
	}
	if err := n.SetChildren(children[:m+1]); err != nil {
		return nil, err
	}
	if err := sibling.SetKeys(rightKeys); err != nil {
		return nil, err
	}
	if err := sibling.SetChildren(rightChildren); err != nil {
		return nil, err
	}

	for _, childID := range rightChildren {
		if err := OpenNode(n.pool, childID).SetParentID(siblingID); err != nil {
			return nil, err
		}
	}

	slog.Debug("btree.internalSplit",
		"node", n.id,
		"sibling", siblingID,
		"separator", median,
	)
	return &Split{Right: sibling, Key: median}, nil
}
