package repository

// Option applies a configuration option to the MemoryLedger.
type Option func(*MemoryLedger)

// WithCapacity sets how many records the ledger keeps before evicting the oldest.
func WithCapacity(capacity int) Option {
	return func(l *MemoryLedger) {
		if capacity > 0 {
			l.capacity = capacity
		}
	}
}
