package tierkv

import (
	"context"

	"go.uber.org/multierr"

	"github.com/unkn0wn-root/tierkv/backend"
)

// flushAll writes back each shard's dirty entries, shards in ascending
// order, one batch per shard. A failing shard keeps its entries dirty and
// does not stop the remaining shards.
func (m *Map[K, V]) flushAll(ctx context.Context) error {
	if !m.be.Durable() {
		return nil
	}
	var errs error
	total := 0
	for _, s := range m.shards {
		n, err := m.flushShard(ctx, s)
		total += n
		errs = multierr.Append(errs, err)
	}
	f := Fields{"written": total}
	if errs != nil {
		f["failed_shards"] = len(multierr.Errors(errs))
		f["err"] = errs
		m.log.Error("tierkv flush incomplete", f)
		return errs
	}
	if total > 0 {
		m.log.Debug("tierkv flushed", f)
	}
	return nil
}

func (m *Map[K, V]) flushShard(ctx context.Context, s *shard[V]) (int, error) {
	n := 0
	err := m.withShard(s, true, func() error {
		if len(s.dirtySet) == 0 {
			return nil
		}
		dirty := s.dirtyEntries()
		ops := make([]backend.Op, len(dirty))
		for i, e := range dirty {
			ops[i] = writeOp(e)
		}
		if err := m.be.WriteBatch(ctx, ops); err != nil {
			m.hooks.WriteBackFailed(s.id, len(ops), err)
			return backendErr("flush", s.id, err)
		}
		for _, e := range dirty {
			if e.live() {
				s.markClean(e)
				continue
			}
			s.remove(e)
		}
		n = len(dirty)
		m.hooks.Flushed(s.id, n)
		return nil
	})
	return n, err
}
