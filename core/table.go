package core

const (
	tableBits  = 5
	tableWidth = 1 << tableBits
	tableMask  = tableWidth - 1
)

// auctionTable is a persistent vector of auction states indexed from 0. It is
// a trie of fanout 32: set copies only the nodes on the path to the changed
// slot, so older tables stay valid and updates cost O(log n).
type auctionTable struct {
	root  *tableNode
	shift uint
	size  int
}

// tableNode uses children on inner levels and states on the leaf level.
type tableNode struct {
	children [tableWidth]*tableNode
	states   [tableWidth]*auctionState
}

func (t auctionTable) len() int { return t.size }

func (t auctionTable) at(i int) *auctionState {
	n := t.root
	for level := t.shift; level > 0; level -= tableBits {
		n = n.children[(i>>level)&tableMask]
	}
	return n.states[i&tableMask]
}

// set returns a table with slot i holding st. i may be at most len(), in
// which case the table grows by one.
func (t auctionTable) set(i int, st *auctionState) auctionTable {
	if i < 0 || i > t.size {
		panic("auction table index out of range")
	}
	out := t
	if i == t.size {
		out.size++
		switch {
		case t.root == nil:
			out.root = &tableNode{}
		case i == tableWidth<<t.shift:
			out.root = &tableNode{}
			out.root.children[0] = t.root
			out.shift = t.shift + tableBits
		}
	}
	out.root = setPath(out.root, out.shift, i, st)
	return out
}

func setPath(n *tableNode, shift uint, i int, st *auctionState) *tableNode {
	var c tableNode
	if n != nil {
		c = *n
	}
	if shift == 0 {
		c.states[i&tableMask] = st
		return &c
	}
	idx := (i >> shift) & tableMask
	c.children[idx] = setPath(c.children[idx], shift-tableBits, i, st)
	return &c
}
