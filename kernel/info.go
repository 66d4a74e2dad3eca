package kernel

// ThreadState describes why a thread can or cannot be selected.
type ThreadState uint8

const (
	ThreadReady ThreadState = iota
	ThreadRunning
	ThreadBlocked
	ThreadSleeping
)

func (s ThreadState) String() string {
	switch s {
	case ThreadReady:
		return "ready"
	case ThreadRunning:
		return "running"
	case ThreadBlocked:
		return "blocked"
	case ThreadSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// ThreadInfo is a snapshot of one live thread.
type ThreadInfo struct {
	ID         ThreadID
	Name       string
	Priority   uint8
	State      ThreadState
	BlockedOn  Semaphore
	SleepUntil uint64
}

// Threads returns the live threads in list order, starting at the anchor.
func (k *Kernel) Threads() []ThreadInfo {
	k.mask.Lock()
	defer k.mask.Unlock()

	out := make([]ThreadInfo, 0, k.nThreads)
	for i, s := 0, k.head; i < k.nThreads && s >= 0; i++ {
		t := &k.tcbs[s]
		info := ThreadInfo{
			ID:        t.id,
			Name:      t.name,
			Priority:  t.priority,
			BlockedOn: t.blockedOn,
		}
		switch {
		case t.blockedOn != 0:
			info.State = ThreadBlocked
		case t.asleep:
			info.State = ThreadSleeping
			info.SleepUntil = t.sleepUntil
		case s == k.current && k.launched:
			info.State = ThreadRunning
		}
		out = append(out, info)
		s = t.next
	}
	return out
}

// SemaphoreInfo is a snapshot of one application semaphore.
type SemaphoreInfo struct {
	Handle  Semaphore
	Value   int32
	Waiters int
}

// Semaphores returns the semaphores allocated with NewSemaphore.
func (k *Kernel) Semaphores() []SemaphoreInfo {
	k.mask.Lock()
	defer k.mask.Unlock()

	out := make([]SemaphoreInfo, k.nSems)
	for i := range out {
		s := Semaphore(i + 1)
		out[i] = SemaphoreInfo{Handle: s, Value: k.sems[i]}
	}
	for i, s := 0, k.head; i < k.nThreads && s >= 0; i++ {
		t := &k.tcbs[s]
		if b := int(t.blockedOn); b >= 1 && b <= k.nSems {
			out[b-1].Waiters++
		}
		s = t.next
	}
	return out
}
