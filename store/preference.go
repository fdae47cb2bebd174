package store

import "time"

// SyncStatus describes where a document stands relative to the remote store.
type SyncStatus string

const (
	// SyncStatusSynced means the remote store has the current document.
	SyncStatusSynced SyncStatus = "SYNCED"
	// SyncStatusPending means a local write has not been pushed yet.
	SyncStatusPending SyncStatus = "PENDING"
	// SyncStatusConflicted means a conflict needs a user decision.
	SyncStatusConflicted SyncStatus = "CONFLICTED"
	// SyncStatusFailed means pushing gave up after the retry budget.
	SyncStatusFailed SyncStatus = "FAILED"
)

// Section names one independently updatable part of a PreferenceDocument.
type Section string

const (
	SectionUnit         Section = "unit"
	SectionNotification Section = "notification"
	SectionCycle        Section = "cycle"
	SectionPrivacy      Section = "privacy"
	SectionDisplay      Section = "display"
	SectionSync         Section = "sync"
)

// UnitPreferences holds measurement unit settings.
type UnitPreferences struct {
	UnitSystem      string `json:"unitSystem"`      // metric | imperial
	TemperatureUnit string `json:"temperatureUnit"` // celsius | fahrenheit
}

// NotificationPreferences holds reminder settings.
type NotificationPreferences struct {
	Enabled           bool `json:"enabled"`
	PeriodReminder    bool `json:"periodReminder"`
	OvulationReminder bool `json:"ovulationReminder"`
	ReminderHour      int  `json:"reminderHour"`
	ReminderMinute    int  `json:"reminderMinute"`
}

// CyclePreferences holds cycle model parameters.
type CyclePreferences struct {
	CycleLength       int `json:"cycleLength"`
	PeriodLength      int `json:"periodLength"`
	LutealPhaseLength int `json:"lutealPhaseLength"`
}

// PrivacyPreferences holds the user-sensitive privacy settings. Conflicting
// concurrent edits to this section are never auto-resolved.
type PrivacyPreferences struct {
	AnalyticsOptIn       bool `json:"analyticsOptIn"`
	HideSensitiveScreens bool `json:"hideSensitiveScreens"`
	AppLockEnabled       bool `json:"appLockEnabled"`
}

// DisplayPreferences holds appearance settings.
type DisplayPreferences struct {
	Theme             string `json:"theme"` // system | light | dark
	FirstDayOfWeek    int    `json:"firstDayOfWeek"`
	ShowCycleDayBadge bool   `json:"showCycleDayBadge"`
}

// SyncPreferences holds the sync policy itself.
type SyncPreferences struct {
	AutoSyncEnabled     bool `json:"autoSyncEnabled"`
	WifiOnly            bool `json:"wifiOnly"`
	PullIntervalMinutes int  `json:"pullIntervalMinutes"`
}

// PreferenceDocument is the full settings aggregate for one user.
//
// LastModified (unix milliseconds) strictly increases on every local
// mutation. Revision is a userId-scoped monotonic write counter used as the
// deterministic tiebreak when two devices write at the same wall-clock time.
type PreferenceDocument struct {
	UserID       string                  `json:"userId"`
	Unit         UnitPreferences         `json:"unit"`
	Notification NotificationPreferences `json:"notification"`
	Cycle        CyclePreferences        `json:"cycle"`
	Privacy      PrivacyPreferences      `json:"privacy"`
	Display      DisplayPreferences      `json:"display"`
	Sync         SyncPreferences         `json:"sync"`
	LastModified int64                   `json:"lastModified"`
	Revision     int64                   `json:"revision"`
	SyncStatus   SyncStatus              `json:"syncStatus"`
}

// DefaultPreferenceDocument returns the defaulted document persisted when a
// user has no settings yet.
func DefaultPreferenceDocument(userID string) *PreferenceDocument {
	return &PreferenceDocument{
		UserID: userID,
		Unit: UnitPreferences{
			UnitSystem:      "metric",
			TemperatureUnit: "celsius",
		},
		Notification: NotificationPreferences{
			Enabled:        true,
			PeriodReminder: true,
			ReminderHour:   9,
		},
		Cycle: CyclePreferences{
			CycleLength:       28,
			PeriodLength:      5,
			LutealPhaseLength: 14,
		},
		Privacy: PrivacyPreferences{
			HideSensitiveScreens: true,
		},
		Display: DisplayPreferences{
			Theme:             "system",
			FirstDayOfWeek:    1,
			ShowCycleDayBadge: true,
		},
		Sync: SyncPreferences{
			AutoSyncEnabled:     true,
			PullIntervalMinutes: 15,
		},
		LastModified: time.Now().UnixMilli(),
		Revision:     0,
		SyncStatus:   SyncStatusPending,
	}
}

// Clone returns a copy callers can hold without aliasing store-owned state.
func (d *PreferenceDocument) Clone() *PreferenceDocument {
	c := *d
	return &c
}

// SectionsEqual reports whether every preference section matches. Metadata
// (LastModified, Revision, SyncStatus) is ignored.
func (d *PreferenceDocument) SectionsEqual(other *PreferenceDocument) bool {
	return d.Unit == other.Unit &&
		d.Notification == other.Notification &&
		d.Cycle == other.Cycle &&
		d.Privacy == other.Privacy &&
		d.Display == other.Display &&
		d.Sync == other.Sync
}

// FindPreferenceDocument specifies the conditions for finding a document.
type FindPreferenceDocument struct {
	UserID *string
}

// DeletePreferenceDocument specifies the document to delete.
type DeletePreferenceDocument struct {
	UserID string
}
