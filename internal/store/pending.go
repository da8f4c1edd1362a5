package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/terminalist/terminalist/internal/model"
)

// Entity tables that share the remote-id / pending-push columns.
const (
	tableProjects = "projects"
	tableSections = "sections"
	tableLabels   = "labels"
	tableTasks    = "tasks"
)

// editedPending returns the pending state after a local edit of a row in
// state cur. A row that was never pushed stays a pending create.
func editedPending(cur model.PendingOp, remoteID string) model.PendingOp {
	switch {
	case cur == model.PendingCreate || remoteID == "":
		return model.PendingCreate
	case cur == model.PendingDelete:
		return model.PendingDelete
	default:
		return model.PendingUpdate
	}
}

// remoteIndex maps remote id to local id for every pushed row of table.
func (tx *Tx) remoteIndex(table, backendID string) (map[string]string, error) {
	rows, err := tx.query("index "+table,
		fmt.Sprintf(`SELECT remote_id, id FROM %s WHERE backend_id = ? AND remote_id IS NOT NULL`, table),
		backendID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[string]string)
	for rows.Next() {
		var remoteID, id string
		if err := rows.Scan(&remoteID, &id); err != nil {
			return nil, classify("scan "+table, err)
		}
		index[remoteID] = id
	}
	if err := rows.Err(); err != nil {
		return nil, classify("index "+table, err)
	}
	return index, nil
}

// deleteMissing hard-deletes rows of table under backendID whose remote id
// is not in keep. Rows without a remote id are pending creates and are kept.
func (tx *Tx) deleteMissing(table, backendID string, keep []string) (int, error) {
	index, err := tx.remoteIndex(table, backendID)
	if err != nil {
		return 0, err
	}

	present := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		present[id] = struct{}{}
	}

	deleted := 0
	for remoteID, id := range index {
		if _, ok := present[remoteID]; ok {
			continue
		}
		res, err := tx.exec("delete missing "+table, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
		if err != nil {
			return deleted, err
		}
		// A cascade from an earlier delete in this loop may have removed it already.
		if n, _ := res.RowsAffected(); n > 0 {
			deleted++
		}
	}
	return deleted, nil
}

// markPushed records the remote id assigned to a created row and clears its
// pending state. A row that already carries a remote id was pushed by
// someone else; that is reported as a ConflictError wrapping ErrAlreadyPushed.
func (tx *Tx) markPushed(table, id, remoteID string) error {
	res, err := tx.exec("mark "+table+" pushed",
		fmt.Sprintf(`UPDATE %s SET remote_id = ?, pending = '', updated_at = ? WHERE id = ? AND remote_id IS NULL`, table),
		remoteIDToNull(remoteID), tx.stamp(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("read affected rows", err)
	}
	if n > 0 {
		return nil
	}

	var existing sql.NullString
	err = tx.q.QueryRowContext(tx.ctx, fmt.Sprintf(`SELECT remote_id FROM %s WHERE id = ?`, table), id).Scan(&existing)
	if isNoRows(err) {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return classify("mark "+table+" pushed", err)
	}
	return &ConflictError{Table: table, Key: "remote_id",
		Err: fmt.Errorf("%s already pushed as %s: %w", id, existing.String, ErrAlreadyPushed)}
}

// purge removes a row outright, bypassing the pending-delete state.
func (tx *Tx) purge(table, id string) error {
	_, err := tx.exec("purge "+table, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	return err
}

// deleteLocal implements the user-facing delete: rows never pushed are
// removed immediately, others are hidden until the remote delete succeeds.
func (tx *Tx) deleteLocal(table, id string) error {
	var remoteID *string
	err := tx.q.QueryRowContext(tx.ctx, fmt.Sprintf(`SELECT remote_id FROM %s WHERE id = ?`, table), id).Scan(&remoteID)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
		}
		return classify("delete "+table, err)
	}

	if remoteID == nil || *remoteID == "" {
		return tx.purge(table, id)
	}

	_, err = tx.exec("delete "+table,
		fmt.Sprintf(`UPDATE %s SET pending = 'delete', updated_at = ? WHERE id = ?`, table),
		tx.stamp(), id)
	return err
}

func (tx *Tx) stamp() string {
	return tx.now().UTC().Format(time.RFC3339)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
