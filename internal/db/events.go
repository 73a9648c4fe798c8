package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/trackeff.report/internal/aod"
)

// InsertEvent stores a collision with its tracks and V0 candidates in one
// transaction. Rows with an existing global index are replaced.
func (db *DB) InsertEvent(ctx context.Context, ev *aod.Event) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c := ev.Collision
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO collisions (global_index, pos_x, pos_y, pos_z, sel8) VALUES (?, ?, ?, ?, ?)`,
		c.GlobalIndex, c.PosX, c.PosY, c.PosZ, boolToInt(c.Sel8),
	); err != nil {
		return fmt.Errorf("insert collision %d: %w", c.GlobalIndex, err)
	}

	trackStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO tracks (
			global_index, collision_id, px, py, pz, has_tpc, has_its, its_cluster_map, tpc_nsigma_pi
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer trackStmt.Close()
	for _, t := range ev.TrackList() {
		if _, err := trackStmt.ExecContext(ctx,
			t.GlobalIndex, c.GlobalIndex, t.Px, t.Py, t.Pz,
			boolToInt(t.HasTPC), boolToInt(t.HasITS), int(t.ITSClusterMap), float64(t.TPCNSigmaPi),
		); err != nil {
			return fmt.Errorf("insert track %d: %w", t.GlobalIndex, err)
		}
	}

	v0Stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO v0s (
			global_index, collision_id, pos_track_id, neg_track_id, x, y, z,
			px_pos, py_pos, pz_pos, px_neg, py_neg, pz_neg
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer v0Stmt.Close()
	for _, v := range ev.V0s {
		if _, err := v0Stmt.ExecContext(ctx,
			v.GlobalIndex, v.CollisionID, v.PosTrackID, v.NegTrackID, v.X, v.Y, v.Z,
			v.PxPos, v.PyPos, v.PzPos, v.PxNeg, v.PyNeg, v.PzNeg,
		); err != nil {
			return fmt.Errorf("insert v0 %d: %w", v.GlobalIndex, err)
		}
	}

	return tx.Commit()
}

// CollisionIDs returns every stored collision index in ascending order.
func (db *DB) CollisionIDs(ctx context.Context) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT global_index FROM collisions ORDER BY global_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadEvent reads one collision, its V0 candidates ordered by index and the
// tracks they reference. Daughter references that have no stored track are
// left unresolved for Event.Validate to report.
func (db *DB) LoadEvent(ctx context.Context, collisionID int64) (*aod.Event, error) {
	var (
		c    aod.Collision
		sel8 int
	)
	err := db.QueryRowContext(ctx,
		`SELECT global_index, pos_x, pos_y, pos_z, sel8 FROM collisions WHERE global_index = ?`,
		collisionID,
	).Scan(&c.GlobalIndex, &c.PosX, &c.PosY, &c.PosZ, &sel8)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collision %d: %w", collisionID, ErrCollisionNotFound)
	}
	if err != nil {
		return nil, err
	}
	c.Sel8 = sel8 != 0

	v0s, err := db.loadV0s(ctx, collisionID)
	if err != nil {
		return nil, err
	}
	tracks, err := db.loadTracks(ctx, collisionID)
	if err != nil {
		return nil, err
	}
	return aod.NewEvent(c, v0s, tracks), nil
}

func (db *DB) loadV0s(ctx context.Context, collisionID int64) ([]aod.V0, error) {
	rows, err := db.QueryContext(ctx, `SELECT global_index, collision_id, pos_track_id, neg_track_id,
			x, y, z, px_pos, py_pos, pz_pos, px_neg, py_neg, pz_neg
		FROM v0s WHERE collision_id = ? ORDER BY global_index`, collisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var v0s []aod.V0
	for rows.Next() {
		var v aod.V0
		if err := rows.Scan(&v.GlobalIndex, &v.CollisionID, &v.PosTrackID, &v.NegTrackID,
			&v.X, &v.Y, &v.Z, &v.PxPos, &v.PyPos, &v.PzPos, &v.PxNeg, &v.PyNeg, &v.PzNeg); err != nil {
			return nil, err
		}
		v0s = append(v0s, v)
	}
	return v0s, rows.Err()
}

func (db *DB) loadTracks(ctx context.Context, collisionID int64) ([]aod.Track, error) {
	rows, err := db.QueryContext(ctx, `SELECT global_index, px, py, pz, has_tpc, has_its, its_cluster_map, tpc_nsigma_pi
		FROM tracks
		WHERE collision_id = ?
		   OR global_index IN (SELECT pos_track_id FROM v0s WHERE collision_id = ?
		                       UNION SELECT neg_track_id FROM v0s WHERE collision_id = ?)
		ORDER BY global_index`, collisionID, collisionID, collisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []aod.Track
	for rows.Next() {
		var (
			t              aod.Track
			hasTPC, hasITS int
			clusterMap     int
			nsigma         float64
		)
		if err := rows.Scan(&t.GlobalIndex, &t.Px, &t.Py, &t.Pz, &hasTPC, &hasITS, &clusterMap, &nsigma); err != nil {
			return nil, err
		}
		t.HasTPC = hasTPC != 0
		t.HasITS = hasITS != 0
		t.ITSClusterMap = uint8(clusterMap)
		t.TPCNSigmaPi = float32(nsigma)
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// EventCounts returns the number of stored collisions, tracks and V0s.
func (db *DB) EventCounts(ctx context.Context) (collisions, tracks, v0s int64, err error) {
	err = db.QueryRowContext(ctx, `SELECT
			(SELECT COUNT(*) FROM collisions),
			(SELECT COUNT(*) FROM tracks),
			(SELECT COUNT(*) FROM v0s)`).Scan(&collisions, &tracks, &v0s)
	return collisions, tracks, v0s, err
}
