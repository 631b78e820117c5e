package merkle

// verifier is the replay state for ordered proof verification: the running
// hash, the 1-based position of the running node on the current level, and
// the next unconsumed proof element.
type verifier struct {
	hasher   *nodeHasher
	proof    [][32]byte
	current  [32]byte
	position int
	next     int
}

func (v *verifier) remaining() int {
	return len(v.proof) - v.next
}

// takeLeft consumes a left sibling: H(sibling || current).
func (v *verifier) takeLeft() bool {
	if v.remaining() == 0 {
		return false
	}
	v.current = v.hasher.pair(v.proof[v.next], v.current)
	v.next++
	return true
}

// takeRight consumes a right sibling: H(current || sibling).
func (v *verifier) takeRight() bool {
	if v.remaining() == 0 {
		return false
	}
	v.current = v.hasher.pair(v.current, v.proof[v.next])
	v.next++
	return true
}

func (v *verifier) ascend() {
	v.position = (v.position + 1) / 2
}

// VerifyOrdered checks an ordered proof for leaf at the 1-based index against root.
//
// The tree size is not an input, so carried-up levels are inferred from the
// proof length: from an odd position p the path to the root must still
// consume one left sibling for every even position it passes through. If the
// remaining proof holds exactly that many elements, the node has no right
// sibling on this level and the running hash passes through unchanged; if it
// holds more, a right sibling is consumed; if fewer, the proof is invalid.
//
// Verification succeeds iff the replay reaches position 1 with the proof
// fully consumed and the running hash equal to root.
func VerifyOrdered(proof [][32]byte, root [32]byte, leaf [32]byte, index int) bool {
	if index < 1 {
		return false
	}

	v := &verifier{
		hasher:   newNodeHasher(),
		proof:    proof,
		current:  leaf,
		position: index,
	}

	for {
		if v.position == 1 && v.remaining() == 0 {
			return v.current == root
		}

		if v.position%2 == 0 {
			if !v.takeLeft() {
				return false
			}
			v.ascend()
			continue
		}

		pending := pendingLeftSiblings(v.position)
		switch {
		case v.remaining() == pending:
			// carried up
		case v.remaining() > pending:
			if !v.takeRight() {
				return false
			}
		default:
			return false
		}
		v.ascend()
	}
}

// VerifyOrderedWithCount checks an ordered proof when the number of leaves is
// known, replaying the exact width of every level. It rejects any index that
// does not match the proof's shape, including positions VerifyOrdered cannot
// tell apart.
func VerifyOrderedWithCount(proof [][32]byte, root [32]byte, leaf [32]byte, index int, leafCount int) bool {
	if leafCount < 1 || index < 1 || index > leafCount {
		return false
	}

	v := &verifier{
		hasher:   newNodeHasher(),
		proof:    proof,
		current:  leaf,
		position: index,
	}

	for width := leafCount; width > 1; width = (width + 1) / 2 {
		switch {
		case v.position%2 == 0:
			if !v.takeLeft() {
				return false
			}
		case v.position < width:
			if !v.takeRight() {
				return false
			}
		default:
			// carried up
		}
		v.ascend()
	}

	return v.remaining() == 0 && v.current == root
}

// pendingLeftSiblings counts the even positions on the path from position p
// up to the root, i.e. the proof elements a node that stays rightmost from
// here on still has to consume.
func pendingLeftSiblings(p int) int {
	count := 0
	for p > 1 {
		if p%2 == 0 {
			count++
		}
		p = (p + 1) / 2
	}
	return count
}
