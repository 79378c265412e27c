package ir

// Loop is a natural loop. Loops sharing a header are merged into one
type Loop struct {
	Header *BasicBlock
	Blocks map[*BasicBlock]bool
	Parent *Loop
	depth  int
}

// Returns the nesting depth of the loop, 1 for outermost loops
func (l *Loop) Depth() int {
	return l.depth
}

// Returns true if the block belongs to the loop
func (l *Loop) Contains(bb *BasicBlock) bool {
	return l.Blocks[bb]
}

// LoopInfo holds the dominator tree and loop nest of a function
type LoopInfo struct {
	fn     *Function
	idom   map[*BasicBlock]*BasicBlock
	order  map[*BasicBlock]int
	preds  map[*BasicBlock][]*BasicBlock
	loops  []*Loop
	b2l    map[*BasicBlock]*Loop
	header map[*BasicBlock]*Loop
}

// Computes dominators and natural loops of the function
func AnalyzeLoops(fn *Function) *LoopInfo {
	li := &LoopInfo{
		fn:     fn,
		idom:   map[*BasicBlock]*BasicBlock{},
		order:  map[*BasicBlock]int{},
		preds:  map[*BasicBlock][]*BasicBlock{},
		b2l:    map[*BasicBlock]*Loop{},
		header: map[*BasicBlock]*Loop{},
	}

	entry := fn.EntryBlock()
	if entry == nil {
		return li
	}

	for _, bb := range fn.Blocks {
		for _, succ := range bb.Successors() {
			li.preds[succ] = append(li.preds[succ], bb)
		}
	}

	rpo := li.reversePostorder(entry)
	li.dominators(entry, rpo)
	li.findLoops(rpo)

	return li
}

func (li *LoopInfo) reversePostorder(entry *BasicBlock) []*BasicBlock {
	type frame struct {
		bb   *BasicBlock
		next int
	}

	visited := map[*BasicBlock]bool{entry: true}
	post := []*BasicBlock{}
	stack := []frame{{bb: entry}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := top.bb.Successors()
		if top.next < len(succs) {
			succ := succs[top.next]
			top.next++
			if !visited[succ] {
				visited[succ] = true
				stack = append(stack, frame{bb: succ})
			}
			continue
		}
		post = append(post, top.bb)
		stack = stack[:len(stack)-1]
	}

	rpo := make([]*BasicBlock, len(post))
	for i, bb := range post {
		rpo[len(post)-1-i] = bb
		li.order[bb] = len(post) - 1 - i
	}
	return rpo
}

// Cooper, Harvey, Kennedy. "A Simple, Fast Dominance Algorithm"
func (li *LoopInfo) dominators(entry *BasicBlock, rpo []*BasicBlock) {
	li.idom[entry] = entry

	intersect := func(a, b *BasicBlock) *BasicBlock {
		for a != b {
			for li.order[a] > li.order[b] {
				a = li.idom[a]
			}
			for li.order[b] > li.order[a] {
				b = li.idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, bb := range rpo[1:] {
			var newIdom *BasicBlock
			for _, pred := range li.preds[bb] {
				if _, processed := li.idom[pred]; !processed {
					continue
				}
				if newIdom == nil {
					newIdom = pred
				} else {
					newIdom = intersect(pred, newIdom)
				}
			}
			if newIdom != nil && li.idom[bb] != newIdom {
				li.idom[bb] = newIdom
				changed = true
			}
		}
	}
}

// Returns true if a dominates b. Unreachable blocks are dominated by nothing
func (li *LoopInfo) Dominates(a, b *BasicBlock) bool {
	if _, ok := li.idom[b]; !ok {
		return false
	}
	for {
		if a == b {
			return true
		}
		next := li.idom[b]
		if next == b {
			return false
		}
		b = next
	}
}

func (li *LoopInfo) findLoops(rpo []*BasicBlock) {
	for _, bb := range rpo {
		for _, succ := range bb.Successors() {
			if !li.Dominates(succ, bb) {
				continue
			}

			// bb -> succ is a back edge
			loop, ok := li.header[succ]
			if !ok {
				loop = &Loop{Header: succ, Blocks: map[*BasicBlock]bool{succ: true}}
				li.header[succ] = loop
				li.loops = append(li.loops, loop)
			}

			worklist := []*BasicBlock{bb}
			for len(worklist) > 0 {
				n := worklist[len(worklist)-1]
				worklist = worklist[:len(worklist)-1]
				if loop.Blocks[n] {
					continue
				}
				loop.Blocks[n] = true
				for _, pred := range li.preds[n] {
					if _, reachable := li.idom[pred]; reachable {
						worklist = append(worklist, pred)
					}
				}
			}
		}
	}

	// A loop's parent is the smallest other loop containing its header
	for _, loop := range li.loops {
		for _, other := range li.loops {
			if other == loop || !other.Contains(loop.Header) {
				continue
			}
			if loop.Parent == nil || len(other.Blocks) < len(loop.Parent.Blocks) {
				loop.Parent = other
			}
		}
	}

	for _, loop := range li.loops {
		for l := loop; l != nil; l = l.Parent {
			loop.depth++
		}
	}

	// Innermost loop of each block
	for _, loop := range li.loops {
		for bb := range loop.Blocks {
			if current, ok := li.b2l[bb]; !ok || loop.depth > current.depth {
				li.b2l[bb] = loop
			}
		}
	}
}

// Returns the innermost loop containing the block, nil if the block is not in a loop
func (li *LoopInfo) LoopFor(bb *BasicBlock) *Loop {
	return li.b2l[bb]
}

// Returns the loop nesting depth of the block, 0 outside loops
func (li *LoopInfo) Depth(bb *BasicBlock) int {
	if loop := li.b2l[bb]; loop != nil {
		return loop.depth
	}
	return 0
}

// Returns the loops of the function in discovery order
func (li *LoopInfo) Loops() []*Loop {
	return li.loops
}

// Returns the preheader of the loop: the unique predecessor of the header from
// outside the loop whose only successor is the header. Nil if there is none
func (li *LoopInfo) Preheader(loop *Loop) *BasicBlock {
	var outside *BasicBlock
	for _, pred := range li.preds[loop.Header] {
		if loop.Contains(pred) {
			continue
		}
		if outside != nil {
			return nil
		}
		outside = pred
	}

	if outside == nil || len(outside.Successors()) != 1 {
		return nil
	}
	return outside
}

// Returns the loop whose preheader is the given block, nil if the block is not a preheader
func (li *LoopInfo) PreheaderOf(bb *BasicBlock) *Loop {
	for _, loop := range li.loops {
		if li.Preheader(loop) == bb {
			return loop
		}
	}
	return nil
}

// Returns the source line where the loop starts: the first debug location in its
// header block. -1 if the header carries no debug locations
func (loop *Loop) StartLine() int {
	for _, inst := range loop.Header.Instructions {
		if line := inst.Line(); line >= 0 {
			return line
		}
	}
	return -1
}
