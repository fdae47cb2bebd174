// Package remote defines the narrow interface to the remote document store
// and its implementations. The engine never assumes more than push/pull
// semantics; authentication and transport details stay behind this boundary.
package remote

import (
	"context"

	"github.com/sestako/eunio-app-sub009/store"
)

// Store is the remote document store the sync coordinator pushes to and
// pulls from.
//
// Implementations classify failures through the internal errors taxonomy:
// SYNC_NO_CONNECTIVITY for transport failures, SYNC_REJECTED for remote
// refusals, SYNC_FAILED for transient remote errors. Callers rely on these
// codes to decide between retry and give-up.
type Store interface {
	// PushDocument uploads the document.
	PushDocument(ctx context.Context, doc *store.PreferenceDocument) error
	// PullDocument fetches the user's document. Returns (nil, nil) when the
	// remote store has none.
	PullDocument(ctx context.Context, userID string) (*store.PreferenceDocument, error)
	// PullLatestBackup fetches the newest remote backup snapshot for the
	// user. Returns (nil, nil) when there is none.
	PullLatestBackup(ctx context.Context, userID string) ([]byte, error)
}
