package thread

// List tracks every live Thread the kernel has created. The original
// kernel links threads through an intrusive list node; that primitive is
// explicitly out of scope here (it's a generic collaborator, not core
// kernel logic), so List is backed by a plain slice instead.
type List struct {
	threads []*Thread
}

// Push appends t to the list.
func (l *List) Push(t *Thread) {
	l.threads = append(l.threads, t)
}

// Remove drops t from the list, if present.
func (l *List) Remove(t *Thread) {
	for i, candidate := range l.threads {
		if candidate == t {
			l.threads = append(l.threads[:i], l.threads[i+1:]...)
			return
		}
	}
}

// Find returns the Thread with the given ID, or nil if none matches.
func (l *List) Find(id uint64) *Thread {
	for _, t := range l.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Len returns the number of threads currently tracked.
func (l *List) Len() int {
	return len(l.threads)
}
