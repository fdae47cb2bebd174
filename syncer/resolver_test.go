package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sestako/eunio-app-sub009/store"
)

func doc(userID string, lastModified, revision int64) *store.PreferenceDocument {
	d := store.DefaultPreferenceDocument(userID)
	d.LastModified = lastModified
	d.Revision = revision
	return d
}

func TestResolveNoRemoteDocument(t *testing.T) {
	local := doc("u1", 1000, 3)

	d := Resolve(local, nil)

	assert.Equal(t, StrategyLocalWins, d.Strategy)
	assert.True(t, d.PushNeeded)
	assert.Equal(t, local.Revision, d.Winner.Revision)
}

func TestResolveLastWriteWins(t *testing.T) {
	t.Run("RemoteNewer", func(t *testing.T) {
		local := doc("u1", 1000, 3)
		remote := doc("u1", 2000, 2)
		remote.Display.Theme = "dark"

		d := Resolve(local, remote)
		assert.Equal(t, StrategyLastWriteWins, d.Strategy)
		assert.Equal(t, "dark", d.Winner.Display.Theme)
		assert.False(t, d.PushNeeded)
	})

	t.Run("LocalNewer", func(t *testing.T) {
		local := doc("u1", 3000, 3)
		local.Display.Theme = "light"
		remote := doc("u1", 2000, 9)

		d := Resolve(local, remote)
		assert.Equal(t, StrategyLocalWins, d.Strategy)
		assert.Equal(t, "light", d.Winner.Display.Theme)
		assert.True(t, d.PushNeeded, "remote must converge on the local winner")
	})
}

func TestResolveIdenticalDocuments(t *testing.T) {
	local := doc("u1", 1000, 3)
	remote := doc("u1", 1000, 3)
	local.SyncStatus = store.SyncStatusPending
	remote.SyncStatus = store.SyncStatusSynced

	d := Resolve(local, remote)
	assert.Equal(t, StrategyRemoteWins, d.Strategy)
	assert.False(t, d.PushNeeded)
}

func TestResolveEqualTimestampTiebreak(t *testing.T) {
	t.Run("RevisionDecides", func(t *testing.T) {
		local := doc("u1", 1000, 5)
		local.Display.Theme = "dark"
		remote := doc("u1", 1000, 2)
		remote.Display.Theme = "light"

		d := Resolve(local, remote)
		assert.Equal(t, StrategyLastWriteWins, d.Strategy)
		assert.Equal(t, "dark", d.Winner.Display.Theme)
		assert.True(t, d.PushNeeded)
	})

	t.Run("ByteCompareWhenRevisionsTie", func(t *testing.T) {
		local := doc("u1", 1000, 5)
		local.Display.Theme = "dark"
		remote := doc("u1", 1000, 5)
		remote.Display.Theme = "light"

		d := Resolve(local, remote)
		require.Equal(t, StrategyLastWriteWins, d.Strategy)
		// "light" > "dark" byte-wise, so remote wins here.
		assert.Equal(t, "light", d.Winner.Display.Theme)
	})
}

func TestResolvePrivacyConflictNeedsUser(t *testing.T) {
	local := doc("u1", 1000, 5)
	local.Privacy.AppLockEnabled = true
	remote := doc("u1", 1000, 7)
	remote.Privacy.AppLockEnabled = false
	remote.Privacy.AnalyticsOptIn = true

	d := Resolve(local, remote)
	assert.Equal(t, StrategyManualRequired, d.Strategy)
	// Local stays in place until the user decides.
	assert.True(t, d.Winner.Privacy.AppLockEnabled)
}

// Two devices resolving the same pair in opposite directions must agree on
// the winning content, or they will ping-pong forever.
func TestResolveIsOrderIndependent(t *testing.T) {
	a := doc("u1", 1000, 5)
	a.Display.Theme = "dark"
	a.Cycle.CycleLength = 30
	b := doc("u1", 1000, 5)
	b.Display.Theme = "light"

	fromA := Resolve(a, b)
	fromB := Resolve(b, a)

	require.NotEqual(t, StrategyManualRequired, fromA.Strategy)
	assert.True(t, fromA.Winner.SectionsEqual(fromB.Winner))
}

func TestResolveIsPure(t *testing.T) {
	local := doc("u1", 2000, 3)
	remote := doc("u1", 1000, 2)
	localBefore := *local
	remoteBefore := *remote

	d := Resolve(local, remote)
	d.Winner.Display.Theme = "mutated"

	assert.Equal(t, localBefore, *local, "inputs must not be mutated")
	assert.Equal(t, remoteBefore, *remote)
}
