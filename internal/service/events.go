package service

// eventRing keeps the newest limit event strings
type eventRing struct {
	limit int
	items []string
}

func newEventRing(limit int) *eventRing {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	return &eventRing{limit: limit, items: make([]string, 0, limit)}
}

func (r *eventRing) add(events ...string) {
	r.items = append(r.items, events...)
	if over := len(r.items) - r.limit; over > 0 {
		r.items = append(r.items[:0], r.items[over:]...)
	}
}

func (r *eventRing) list() []string {
	out := make([]string, len(r.items))
	copy(out, r.items)
	return out
}

func (r *eventRing) reset() {
	r.items = r.items[:0]
}
