package sqlite

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/lists/pkg/types"
)

// Gateway is a Table that parses its rows into entities at the boundary.
type Gateway[T types.Entity] struct {
	*Table
	parse func(types.Record) (T, error)
}

func newGateway[T types.Entity](t *Table, parse func(types.Record) (T, error)) *Gateway[T] {
	return &Gateway[T]{Table: t, parse: parse}
}

// FetchAll returns the entities matching q in the table scope. Rows that
// fail to parse are skipped and logged; an empty result is not an error.
func (g *Gateway[T]) FetchAll(ctx context.Context, q Query) ([]T, error) {
	recs, err := g.fetchRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	skipped := 0
	for _, rec := range recs {
		e, err := g.parse(rec)
		if err != nil {
			skipped++
			g.logger.Warn("skipping malformed record", "table", g.Identifier(), "err", err)
			continue
		}
		out = append(out, e)
	}
	if skipped > 0 {
		g.logger.Error("malformed records in table", "table", g.Identifier(), "skipped", skipped, "fetched", len(out))
	}
	return out, nil
}

// FetchOne returns the entity with id in the table scope, or ErrNotFound.
// Not-found is logged unless check is set, for callers that only probe.
func (g *Gateway[T]) FetchOne(ctx context.Context, id int64, check bool) (T, error) {
	var zero T
	if id <= 0 {
		return zero, types.ErrInvalidID
	}
	recs, err := g.fetchRecords(ctx, Query{Where: []string{"id = ?"}, Args: []any{id}, Limit: 1})
	if err != nil {
		return zero, err
	}
	if len(recs) == 0 {
		if !check {
			g.logger.Error("entity not found", "table", g.Identifier(), "id", id)
		}
		return zero, fmt.Errorf("%w: %s id %d", types.ErrNotFound, g.Identifier(), id)
	}
	return g.parse(recs[0])
}

// Upsert writes e when it is virtual or dirty and returns its id. A virtual
// entity is inserted and adopts the assigned id; on failure no id is
// assigned and the entity stays dirty.
func (g *Gateway[T]) Upsert(ctx context.Context, e T) (int64, error) {
	return g.Store(ctx, e, false)
}

// Store is Upsert with force selecting every column for writing.
func (g *Gateway[T]) Store(ctx context.Context, e T, force bool) (int64, error) {
	if !force && !e.Dirty() {
		return e.ID(), nil
	}
	id, err := g.write(ctx, e.ID(), e.IsVirtual(), e.ToBackend(force))
	if err != nil {
		return 0, err
	}
	e.MarkStored(id)
	return id, nil
}
