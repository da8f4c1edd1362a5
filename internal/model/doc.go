// Package model defines the entities mirrored from a remote task service.
//
// Every entity except Backend is scoped to exactly one Backend. Each row has
// two identifiers:
//
//   - ID is the local identifier, minted once when the row first appears in
//     the local cache and never changed afterwards. UI state and the
//     task/label association hold local identifiers only.
//   - RemoteID is the upstream key. It is empty until the row has been
//     acknowledged by the remote service and is the join key used when a
//     remote listing is reconciled against the cache.
//
// Relationships are plain foreign-key fields (ProjectID, SectionID, ParentID).
// Navigating them is done through explicit query helpers on the store, not
// through fields embedded in the structs.
//
// Rows created or edited locally carry a Pending marker until the next sync
// pass pushes them upstream:
//
//	PendingNone    row matches the last remote state
//	PendingCreate  row exists only locally; RemoteID is empty
//	PendingUpdate  row has local edits not yet pushed
//	PendingDelete  row is hidden locally; remote delete not yet confirmed
package model
