package incident

// ringBuffer keeps the most recent N frames. Pushing past capacity evicts the
// oldest frame.
type ringBuffer struct {
	frames []Frame
	head   int
	size   int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{frames: make([]Frame, capacity)}
}

func (r *ringBuffer) push(f Frame) {
	r.frames[r.head] = f
	r.head = (r.head + 1) % len(r.frames)
	if r.size < len(r.frames) {
		r.size++
	}
}

func (r *ringBuffer) len() int {
	return r.size
}

// snapshot returns the buffered frames oldest first.
func (r *ringBuffer) snapshot() []Frame {
	out := make([]Frame, 0, r.size)
	start := r.head - r.size
	if start < 0 {
		start += len(r.frames)
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.frames[(start+i)%len(r.frames)])
	}
	return out
}

func (r *ringBuffer) reset() {
	r.head = 0
	r.size = 0
}
