package orderbook

type color uint8

const (
	red color = iota
	black
)

type levelNode struct {
	price  int64
	level  *PriceLevel
	color  color
	left   *levelNode
	right  *levelNode
	parent *levelNode
}

// levelTree is a red-black tree of price levels. Keys are ordered by
// before, so the leftmost node is always the best price for the side
// that owns the tree.
type levelTree struct {
	root   *levelNode
	nil    *levelNode // black sentinel
	before func(a, b int64) bool
	size   int
}

func newLevelTree(before func(a, b int64) bool) *levelTree {
	sentinel := &levelNode{color: black}
	return &levelTree{
		root:   sentinel,
		nil:    sentinel,
		before: before,
	}
}

func (t *levelTree) Len() int { return t.size }

func (t *levelTree) Find(price int64) *PriceLevel {
	n := t.search(price)
	if n == t.nil {
		return nil
	}
	return n.level
}

// Upsert returns the level at price, creating it if absent.
func (t *levelTree) Upsert(price int64) *PriceLevel {
	parent := t.nil
	cur := t.root
	for cur != t.nil {
		parent = cur
		switch {
		case t.before(price, cur.price):
			cur = cur.left
		case t.before(cur.price, price):
			cur = cur.right
		default:
			return cur.level
		}
	}

	n := &levelNode{
		price:  price,
		level:  newPriceLevel(price),
		color:  red,
		left:   t.nil,
		right:  t.nil,
		parent: parent,
	}
	switch {
	case parent == t.nil:
		t.root = n
	case t.before(price, parent.price):
		parent.left = n
	default:
		parent.right = n
	}
	t.insertFixup(n)
	t.size++
	return n.level
}

// Delete removes the level at price and reports whether it existed.
func (t *levelTree) Delete(price int64) bool {
	n := t.search(price)
	if n == t.nil {
		return false
	}
	t.deleteNode(n)
	t.size--
	return true
}

// First returns the best level, or nil.
func (t *levelTree) First() *PriceLevel {
	n := t.leftmost(t.root)
	if n == t.nil {
		return nil
	}
	return n.level
}

// Ascend visits levels best-first until fn returns false.
func (t *levelTree) Ascend(fn func(*PriceLevel) bool) {
	for n := t.leftmost(t.root); n != t.nil; n = t.successor(n) {
		if !fn(n.level) {
			return
		}
	}
}

// -------------------- internals --------------------

func (t *levelTree) search(price int64) *levelNode {
	n := t.root
	for n != t.nil {
		switch {
		case t.before(price, n.price):
			n = n.left
		case t.before(n.price, price):
			n = n.right
		default:
			return n
		}
	}
	return t.nil
}

func (t *levelTree) leftmost(n *levelNode) *levelNode {
	if n == t.nil {
		return t.nil
	}
	for n.left != t.nil {
		n = n.left
	}
	return n
}

func (t *levelTree) successor(n *levelNode) *levelNode {
	if n.right != t.nil {
		return t.leftmost(n.right)
	}
	p := n.parent
	for p != t.nil && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (t *levelTree) rotateLeft(x *levelNode) {
	y := x.right
	x.right = y.left
	if y.left != t.nil {
		y.left.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == t.nil:
		t.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *levelTree) rotateRight(y *levelNode) {
	x := y.left
	y.left = x.right
	if x.right != t.nil {
		x.right.parent = y
	}
	x.parent = y.parent
	switch {
	case y.parent == t.nil:
		t.root = x
	case y == y.parent.right:
		y.parent.right = x
	default:
		y.parent.left = x
	}
	x.right = y
	y.parent = x
}

func (t *levelTree) insertFixup(z *levelNode) {
	for z.parent.color == red {
		gp := z.parent.parent
		if z.parent == gp.left {
			uncle := gp.right
			if uncle.color == red {
				z.parent.color = black
				uncle.color = black
				gp.color = red
				z = gp
				continue
			}
			if z == z.parent.right {
				z = z.parent
				t.rotateLeft(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.rotateRight(z.parent.parent)
		} else {
			uncle := gp.left
			if uncle.color == red {
				z.parent.color = black
				uncle.color = black
				gp.color = red
				z = gp
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rotateRight(z)
			}
			z.parent.color = black
			z.parent.parent.color = red
			t.rotateLeft(z.parent.parent)
		}
	}
	t.root.color = black
}

func (t *levelTree) transplant(u, v *levelNode) {
	switch {
	case u.parent == t.nil:
		t.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}
	v.parent = u.parent
}

func (t *levelTree) deleteNode(z *levelNode) {
	y := z
	removed := y.color
	var x *levelNode

	switch {
	case z.left == t.nil:
		x = z.right
		t.transplant(z, z.right)
	case z.right == t.nil:
		x = z.left
		t.transplant(z, z.left)
	default:
		y = t.leftmost(z.right)
		removed = y.color
		x = y.right
		if y.parent == z {
			x.parent = y
		} else {
			t.transplant(y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		t.transplant(z, y)
		y.left = z.left
		y.left.parent = y
		y.color = z.color
	}

	if removed == black {
		t.deleteFixup(x)
	}
}

func (t *levelTree) deleteFixup(x *levelNode) {
	for x != t.root && x.color == black {
		if x == x.parent.left {
			w := x.parent.right
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rotateLeft(x.parent)
				w = x.parent.right
			}
			if w.left.color == black && w.right.color == black {
				w.color = red
				x = x.parent
				continue
			}
			if w.right.color == black {
				w.left.color = black
				w.color = red
				t.rotateRight(w)
				w = x.parent.right
			}
			w.color = x.parent.color
			x.parent.color = black
			w.right.color = black
			t.rotateLeft(x.parent)
			x = t.root
		} else {
			w := x.parent.left
			if w.color == red {
				w.color = black
				x.parent.color = red
				t.rotateRight(x.parent)
				w = x.parent.left
			}
			if w.right.color == black && w.left.color == black {
				w.color = red
				x = x.parent
				continue
			}
			if w.left.color == black {
				w.right.color = black
				w.color = red
				t.rotateLeft(w)
				w = x.parent.left
			}
			w.color = x.parent.color
			x.parent.color = black
			w.left.color = black
			t.rotateRight(x.parent)
			x = t.root
		}
	}
	x.color = black
}
