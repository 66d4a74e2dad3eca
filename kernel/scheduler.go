package kernel

// schedule selects the thread that runs next. Caller holds the mask.
//
// The list is scanned once, starting after the running thread, and the first
// eligible thread with the lowest priority value wins, so equal priorities
// rotate in scan order. The running thread is compared last and keeps the CPU
// only when it is strictly more urgent than every other candidate. When
// nothing is eligible the running slot is returned unchanged.
func (k *Kernel) schedule() int {
	cur := k.current
	curLive := cur >= 0 && k.tcbs[cur].alive

	best, bestPri := -1, MaxPriority+1
	for i, s := 0, k.scanStart(); i < k.nThreads && s >= 0; i++ {
		t := &k.tcbs[s]
		if s != cur && t.eligible() && int(t.priority) < bestPri {
			best, bestPri = s, int(t.priority)
		}
		s = t.next
	}
	if curLive && k.tcbs[cur].eligible() && int(k.tcbs[cur].priority) < bestPri {
		best = cur
	}
	if best < 0 {
		return cur
	}
	return best
}

// scanStart returns the slot a list walk that should end on the running
// thread begins at.
func (k *Kernel) scanStart() int {
	if cur := k.current; cur >= 0 && k.tcbs[cur].alive {
		return k.tcbs[cur].next
	}
	return k.head
}
