package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/multierr"

	"github.com/drifter/server/internal/world"
)

// DiffRepo stores chunk diffs, one row per edited cell or column. Rows are
// keyed by world seed so several worlds can share a database.
type DiffRepo struct {
	db   *DB
	seed int64
}

func NewDiffRepo(db *DB, seed int64) *DiffRepo {
	return &DiffRepo{db: db, seed: seed}
}

// LoadDiff returns world.ErrNoDiff when the chunk was never saved.
func (r *DiffRepo) LoadDiff(ctx context.Context, chunkIndex int) (*world.Diff, error) {
	d := world.NewDiff(chunkIndex)
	var baseline []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT baseline FROM chunk_diffs WHERE world_seed = $1 AND chunk_index = $2`,
		r.seed, int64(chunkIndex),
	).Scan(&baseline)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, world.ErrNoDiff
	}
	if err != nil {
		return nil, fmt.Errorf("load chunk %d: %w", chunkIndex, err)
	}
	copy(d.Baseline[:], baseline)

	rows, err := r.db.Pool.Query(ctx,
		`SELECT local_x, local_y, tile FROM chunk_tile_edits
		 WHERE world_seed = $1 AND chunk_index = $2`, r.seed, int64(chunkIndex),
	)
	if err != nil {
		return nil, fmt.Errorf("load chunk %d tiles: %w", chunkIndex, err)
	}
	for rows.Next() {
		var x, y, code int16
		if err := rows.Scan(&x, &y, &code); err != nil {
			rows.Close()
			return nil, err
		}
		d.Tiles[world.LocalCoord{X: int(x), Y: int(y)}] = world.Tile(storedCode(code))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Pool.Query(ctx,
		`SELECT local_x, vegetation FROM chunk_vegetation_edits
		 WHERE world_seed = $1 AND chunk_index = $2`, r.seed, int64(chunkIndex),
	)
	if err != nil {
		return nil, fmt.Errorf("load chunk %d vegetation: %w", chunkIndex, err)
	}
	defer rows.Close()
	for rows.Next() {
		var x, code int16
		if err := rows.Scan(&x, &code); err != nil {
			return nil, err
		}
		d.Vegetation[int(x)] = world.Vegetation(storedCode(code))
	}
	return d, rows.Err()
}

// storedCode narrows a stored code to a byte. Codes that do not fit map to
// 0xFF, which no tile or vegetation uses, so replay skips them.
func storedCode(v int16) uint8 {
	if v < 0 || v > 0xFF {
		return 0xFF
	}
	return uint8(v)
}

// SaveDiffs writes each diff in its own transaction, replacing what was
// stored for the chunk. Every diff is attempted; failures are combined.
func (r *DiffRepo) SaveDiffs(ctx context.Context, diffs []*world.Diff) error {
	var errs error
	for _, d := range diffs {
		if err := r.saveDiff(ctx, d); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("chunk %d: %w", d.ChunkIndex, err))
		}
	}
	return errs
}

func (r *DiffRepo) saveDiff(ctx context.Context, d *world.Diff) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO chunk_diffs (world_seed, chunk_index, baseline, edits, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (world_seed, chunk_index)
		 DO UPDATE SET baseline = EXCLUDED.baseline, edits = EXCLUDED.edits, updated_at = now()`,
		r.seed, int64(d.ChunkIndex), d.Baseline[:], d.Len(),
	); err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM chunk_tile_edits WHERE world_seed = $1 AND chunk_index = $2`,
		r.seed, int64(d.ChunkIndex),
	); err != nil {
		return fmt.Errorf("clear tiles: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM chunk_vegetation_edits WHERE world_seed = $1 AND chunk_index = $2`,
		r.seed, int64(d.ChunkIndex),
	); err != nil {
		return fmt.Errorf("clear vegetation: %w", err)
	}

	if rows := tileRows(r.seed, d); len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"chunk_tile_edits"},
			[]string{"world_seed", "chunk_index", "local_x", "local_y", "tile"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy tiles: %w", err)
		}
	}
	if rows := vegetationRows(r.seed, d); len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"chunk_vegetation_edits"},
			[]string{"world_seed", "chunk_index", "local_x", "vegetation"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy vegetation: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func tileRows(seed int64, d *world.Diff) [][]any {
	coords := d.SortedTiles()
	rows := make([][]any, 0, len(coords))
	for _, c := range coords {
		rows = append(rows, []any{seed, int64(d.ChunkIndex), int16(c.X), int16(c.Y), int16(d.Tiles[c])})
	}
	return rows
}

func vegetationRows(seed int64, d *world.Diff) [][]any {
	cols := d.SortedColumns()
	rows := make([][]any, 0, len(cols))
	for _, x := range cols {
		rows = append(rows, []any{seed, int64(d.ChunkIndex), int16(x), int16(d.Vegetation[x])})
	}
	return rows
}

// StoredChunks lists the chunk indices with a saved diff, ascending.
func (r *DiffRepo) StoredChunks(ctx context.Context) ([]int, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT chunk_index FROM chunk_diffs WHERE world_seed = $1 ORDER BY chunk_index`, r.seed,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []int
	for rows.Next() {
		var idx int64
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		result = append(result, int(idx))
	}
	return result, rows.Err()
}

// DeleteDiff forgets a chunk's edits; it regenerates from the seed alone on
// next load.
func (r *DiffRepo) DeleteDiff(ctx context.Context, chunkIndex int) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM chunk_diffs WHERE world_seed = $1 AND chunk_index = $2`,
		r.seed, int64(chunkIndex),
	)
	return err
}
