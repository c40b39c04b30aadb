package auction

// Session is the set of keys already seen during one capture run.
// It is not safe for concurrent use.
type Session struct {
	seen map[CompositeKey]struct{}
}

func NewSession() *Session {
	return &Session{seen: make(map[CompositeKey]struct{})}
}

// Dedupe returns the items whose key has not been seen in this session,
// keeping the first occurrence and the input order.
func (s *Session) Dedupe(items []CapturedItem) []CapturedItem {
	out := make([]CapturedItem, 0, len(items))
	for _, item := range items {
		key := KeyOf(item)
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func (s *Session) Len() int {
	return len(s.seen)
}
