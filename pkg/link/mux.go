package link

// roundRobin picks among payload endpoints starting after the last pick.
type roundRobin struct {
	next int
}

// pick returns the first index in [1, n) for which ready holds, scanning from
// the cursor and wrapping around. Index 0 is never picked.
func (r *roundRobin) pick(n int, ready func(int) bool) (int, bool) {
	if n <= 1 {
		return 0, false
	}
	if r.next < 1 || r.next >= n {
		r.next = 1
	}
	for i := 0; i < n-1; i++ {
		id := 1 + (r.next-1+i)%(n-1)
		if ready(id) {
			r.next = id + 1
			return id, true
		}
	}
	return 0, false
}
