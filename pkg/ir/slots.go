package ir

// SlotTracker numbers the unnamed local values of a function the same way the
// LLVM assembly writer does: unnamed arguments first, then for each block the
// block itself if unnamed followed by its unnamed value producing instructions
type SlotTracker struct {
	slots map[Value]int
}

func NewSlotTracker(fn *Function) *SlotTracker {
	st := &SlotTracker{slots: map[Value]int{}}
	next := 0

	for _, arg := range fn.Args {
		if arg.ArgName == "" {
			st.slots[arg] = next
			next++
		}
	}

	for _, bb := range fn.Blocks {
		if bb.BlockName == "" {
			st.slots[bb] = next
			next++
		}

		for _, inst := range bb.Instructions {
			if inst.InstName == "" && !inst.IsVoid() {
				st.slots[inst] = next
				next++
			}
		}
	}

	return st
}

// Returns the local slot number of the value, -1 if the value has no slot
func (st *SlotTracker) LocalSlot(v Value) int {
	if slot, ok := st.slots[v]; ok {
		return slot
	}
	return -1
}

// Returns the number of numbered values
func (st *SlotTracker) Len() int {
	return len(st.slots)
}
