package csd

// window is a fixed-size circular buffer of coordination scores. Oldest
// value is overwritten once full, so the rolling history never exceeds
// the configured size.
type window struct {
	data  []float64
	size  int
	head  int
	count int
}

func newWindow(size int) *window {
	return &window{
		data: make([]float64, size),
		size: size,
	}
}

// add appends a value, overwriting the oldest if full.
func (w *window) add(v float64) {
	w.data[w.head] = v
	w.head = (w.head + 1) % w.size
	if w.count < w.size {
		w.count++
	}
}

// values returns the window contents in chronological order, oldest first.
func (w *window) values() []float64 {
	out := make([]float64, w.count)
	for i := 0; i < w.count; i++ {
		idx := (w.head - w.count + i + w.size) % w.size
		out[i] = w.data[idx]
	}
	return out
}

func (w *window) len() int {
	return w.count
}
