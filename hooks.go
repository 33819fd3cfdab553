package tierkv

// Hooks are lightweight callbacks for tiering events.
// Implementations MUST be cheap and non-blocking: most are called while a
// shard lock is held or on the eviction path. Wrap slow sinks with hooks/async.
type Hooks interface {
	// A resident entry left memory. dirty reports whether it was written
	// back to the backend first.
	Evicted(shard int, dirty bool)

	// A miss was served from the backend and the value became resident.
	LoadedThrough(shard int)

	// A flush persisted n dirty entries of one shard in a single batch.
	Flushed(shard int, n int)

	// Writing n dirty entries back failed; they stay resident and dirty.
	WriteBackFailed(shard int, n int, err error)

	// A panic interrupted a mutation; the shard now refuses all operations.
	ShardPoisoned(shard int, recovered any)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Evicted(int, bool)               {}
func (NopHooks) LoadedThrough(int)               {}
func (NopHooks) Flushed(int, int)                {}
func (NopHooks) WriteBackFailed(int, int, error) {}
func (NopHooks) ShardPoisoned(int, any)          {}
