package syncer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sestako/eunio-app-sub009/store"
)

// Strategy names how a conflict between two document versions was settled.
type Strategy string

const (
	// StrategyLastWriteWins picked the document with the greater timestamp.
	StrategyLastWriteWins Strategy = "LAST_WRITE_WINS"
	// StrategyLocalWins kept the local document; a push is still required
	// so the remote store converges.
	StrategyLocalWins Strategy = "LOCAL_WINS"
	// StrategyRemoteWins adopted the remote document.
	StrategyRemoteWins Strategy = "REMOTE_WINS"
	// StrategyFieldMerge combined sections from both documents. Reserved
	// for future section-level merging; the resolver never emits it today.
	StrategyFieldMerge Strategy = "FIELD_MERGE"
	// StrategyManualRequired means the documents disagree on a
	// user-sensitive section and only the user can decide.
	StrategyManualRequired Strategy = "MANUAL_REQUIRED"
)

// Decision is the outcome of resolving a local/remote document pair. The
// resolver never applies it; the store persists the winner.
type Decision struct {
	Winner   *store.PreferenceDocument
	Strategy Strategy
	Reason   string
	// PushNeeded reports that the remote store does not hold the winner
	// yet and a push must follow.
	PushNeeded bool
}

// Resolve deterministically picks a winner between the local and remote
// versions of a user's document.
//
// Ordering is last-write-wins by LastModified. Equal timestamps mean clock
// skew or a simultaneous write; those fall back to the userId-scoped write
// counter (Revision), then to a byte comparison of the canonical encoding,
// so two racing devices converge on the same winner without coordination.
// The only exception is a disagreement on the privacy section, which is
// never auto-resolved.
//
// Resolve is a pure function: same inputs, same decision, no side effects.
func Resolve(local, remote *store.PreferenceDocument) Decision {
	if remote == nil {
		return Decision{
			Winner:     local.Clone(),
			Strategy:   StrategyLocalWins,
			Reason:     "remote store has no document",
			PushNeeded: true,
		}
	}

	if remote.LastModified > local.LastModified {
		return Decision{
			Winner:   remote.Clone(),
			Strategy: StrategyLastWriteWins,
			Reason: fmt.Sprintf("remote is newer (remote lastModified=%d > local lastModified=%d)",
				remote.LastModified, local.LastModified),
		}
	}
	if local.LastModified > remote.LastModified {
		return Decision{
			Winner:   local.Clone(),
			Strategy: StrategyLocalWins,
			Reason: fmt.Sprintf("local is newer (local lastModified=%d > remote lastModified=%d)",
				local.LastModified, remote.LastModified),
			PushNeeded: true,
		}
	}

	// Equal timestamps.
	if local.SectionsEqual(remote) {
		return Decision{
			Winner:   remote.Clone(),
			Strategy: StrategyRemoteWins,
			Reason:   "documents are identical",
		}
	}

	if local.Privacy != remote.Privacy {
		return Decision{
			Winner:   local.Clone(),
			Strategy: StrategyManualRequired,
			Reason: fmt.Sprintf("privacy section differs at identical lastModified=%d; not auto-resolving",
				local.LastModified),
		}
	}

	winner, reason := tiebreak(local, remote)
	d := Decision{
		Winner:   winner.Clone(),
		Strategy: StrategyLastWriteWins,
		Reason:   reason,
	}
	d.PushNeeded = winner == local
	return d
}

// tiebreak orders two documents with identical timestamps. The write counter
// decides first; if both devices somehow agree on it too, the greater
// canonical encoding wins. Both comparisons are symmetric in their inputs,
// which makes Resolve(a, b) and Resolve(b, a) agree on the winner.
func tiebreak(local, remote *store.PreferenceDocument) (*store.PreferenceDocument, string) {
	if local.Revision != remote.Revision {
		if local.Revision > remote.Revision {
			return local, fmt.Sprintf("equal timestamps, local write counter is higher (%d > %d)",
				local.Revision, remote.Revision)
		}
		return remote, fmt.Sprintf("equal timestamps, remote write counter is higher (%d > %d)",
			remote.Revision, local.Revision)
	}

	if bytes.Compare(canonical(local), canonical(remote)) >= 0 {
		return local, "equal timestamps and write counters, local encoding ordered last"
	}
	return remote, "equal timestamps and write counters, remote encoding ordered last"
}

// canonical renders the document's sections in a stable byte form.
func canonical(doc *store.PreferenceDocument) []byte {
	c := doc.Clone()
	c.SyncStatus = ""
	data, _ := json.Marshal(c)
	return data
}
