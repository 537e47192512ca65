package identity

import "strconv"

// GetInt reads a numeric preference, clamping it to [min, max]. Missing or
// unparseable values fall back to def. Layout positions and similar UI
// preferences are persisted by callers without validation, so clamping
// happens here on the read path.
func (s *Store) GetInt(key string, def, min, max int) int {
	raw, err := s.Get(key)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// SetInt stores a numeric preference.
func (s *Store) SetInt(key string, n int) error {
	return s.Set(key, strconv.Itoa(n))
}
