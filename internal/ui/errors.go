package ui

import (
	"context"
	"errors"

	"github.com/terminalist/terminalist/internal/remote"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/syncer"
)

// presentError turns err into at most one message. It is the only place
// errors reach the user; everything is logged.
func (l *Loop) presentError(what string, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress), errors.Is(err, context.Canceled):
		return
	case store.IsConflict(err):
		l.logger.Printf("WARNING: %s skipped a conflicting row: %v", what, err)
		return
	}

	l.logger.Printf("WARNING: Failed to %s: %v", what, err)
	switch {
	case store.IsUnavailable(err):
		l.state.errorMessage = "Local database unavailable: " + err.Error()
	case errors.Is(err, remote.ErrAuth):
		l.state.errorMessage = "Authentication failed; check the backend credentials"
	case errors.Is(err, remote.ErrUnreachable):
		l.state.infoMessage = "Offline: changes are saved locally and will sync later"
	case errors.Is(err, remote.ErrRejected):
		l.state.errorMessage = "Server rejected the request: " + err.Error()
	case errors.Is(err, syncer.ErrInboxProject):
		l.state.errorMessage = "The inbox project cannot be deleted"
	case errors.Is(err, syncer.ErrNoInbox):
		l.state.errorMessage = "No inbox yet; sync once before adding tasks"
	default:
		l.state.errorMessage = "Failed to " + what + ": " + err.Error()
	}
}
