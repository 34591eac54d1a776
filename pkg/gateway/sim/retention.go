package sim

// DefaultRetention bounds how many reservations, shipments, delivered
// messages and recipient limiters a simulator remembers.
const DefaultRetention = 4096

// refWindow keeps insertion order so the oldest reference can be forgotten.
type refWindow struct {
	max   int
	order []string
}

func newRefWindow(size int) refWindow {
	if size <= 0 {
		size = DefaultRetention
	}
	return refWindow{max: size}
}

// push records ref and returns the reference that fell out of the window.
func (w *refWindow) push(ref string) (string, bool) {
	w.order = append(w.order, ref)
	if len(w.order) <= w.max {
		return "", false
	}
	evicted := w.order[0]
	w.order = w.order[1:]
	return evicted, true
}

// resize changes the bound and returns the references it pushed out.
func (w *refWindow) resize(size int) []string {
	if size <= 0 {
		size = DefaultRetention
	}
	w.max = size
	if len(w.order) <= size {
		return nil
	}
	n := len(w.order) - size
	evicted := w.order[:n]
	w.order = w.order[n:]
	return evicted
}
