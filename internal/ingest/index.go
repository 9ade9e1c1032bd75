package ingest

// ExistingIndex counts the records already registered in the target system,
// keyed by date and amount. It lives for a single run.
type ExistingIndex struct {
	counts map[RecordKey]int
}

// NewExistingIndex creates an empty index.
func NewExistingIndex() *ExistingIndex {
	return &ExistingIndex{counts: make(map[RecordKey]int)}
}

// Add records one more existing record with the given key. Keys missing a date
// or an amount are ignored.
func (x *ExistingIndex) Add(key RecordKey) {
	if !key.Comparable() {
		return
	}
	x.counts[key]++
}

// Remaining returns how many existing records with key have not been matched yet.
func (x *ExistingIndex) Remaining(key RecordKey) int {
	return x.counts[key]
}

// Consume matches one existing record against key. It returns false when no
// unmatched record with that key is left.
func (x *ExistingIndex) Consume(key RecordKey) bool {
	if x.counts[key] <= 0 {
		return false
	}
	x.counts[key]--
	return true
}

// Keys returns the number of distinct keys seen.
func (x *ExistingIndex) Keys() int {
	return len(x.counts)
}

// Total returns the number of unmatched records across all keys.
func (x *ExistingIndex) Total() int {
	total := 0
	for _, n := range x.counts {
		total += n
	}
	return total
}
