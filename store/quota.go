package store

// Quota limits the total size of a Storage, counting both keys and values the
// way browsers account for localStorage usage.
type Quota struct {
	Storage
	limit int
}

// WithQuota wraps s so that batches pushing its total size past limit bytes
// fail with ErrQuotaExceeded. A limit of zero or less disables the check.
func WithQuota(s Storage, limit int) Storage {
	if limit <= 0 {
		return s
	}

	return &Quota{Storage: s, limit: limit}
}

func (q *Quota) Apply(batch Batch) error {
	used, err := Usage(q.Storage)
	if err != nil {
		return err
	}

	after := used

	var written int

	for k, v := range batch {
		old, err := q.Storage.Get(k)
		if err != nil {
			return err
		}

		if old != nil {
			after -= len(k) + len(old)
		}

		if v != nil {
			after += len(k) + len(v)
			written += len(k) + len(v)
		}
	}

	if after > q.limit {
		return ErrQuotaExceeded.Fmt(written, q.limit)
	}

	return q.Storage.Apply(batch)
}

// Usage returns the number of bytes held by s.
func Usage(s Storage) (int, error) {
	keys, err := s.Keys()
	if err != nil {
		return 0, err
	}

	var total int

	for _, k := range keys {
		v, err := s.Get(k)
		if err != nil {
			return 0, err
		}

		if v != nil {
			total += len(k) + len(v)
		}
	}

	return total, nil
}
