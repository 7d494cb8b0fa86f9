package infra

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/eventbus"
)

var journalFixture = []domain.Event{
	domain.ProcessStarted{Name: "kodi"},
	domain.MediaActivityChanged{Active: true},
	domain.PolicyDecision{Profile: "cinema", Variant: "night", Reason: domain.ReasonMediaActive},
	domain.SwitchIntent{Profile: "cinema", Variant: "night", Reason: domain.ReasonMediaActive},
	domain.ConfigApplied{Path: "/etc/camilladsp-autoswitch/profiles/cinema.night.yml"},
	domain.ConfigInvalidated{Path: "/etc/camilladsp-autoswitch/profiles/cinema.night.yml", Reason: "YAML syntax error: line 2"},
	domain.ProcessStopped{Name: "kodi"},
}

func openTestJournal(t *testing.T, key []byte) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "state", "journal.db"), key, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_AppendAndEntries(t *testing.T) {
	j := openTestJournal(t, nil)
	ctx := context.Background()

	for _, e := range journalFixture {
		require.NoError(t, j.Append(ctx, e))
	}

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, len(journalFixture))

	if diff := cmp.Diff(journalFixture, JournalEvents(entries)); diff != "" {
		t.Fatalf("journal round trip mismatch (-want +got):\n%s", diff)
	}

	ids := map[string]bool{}
	for i, e := range entries {
		assert.NotEmpty(t, e.ID)
		assert.False(t, ids[e.ID], "ids are unique")
		ids[e.ID] = true
		if i > 0 {
			assert.Greater(t, e.Seq, entries[i-1].Seq)
		}
	}
}

func TestJournal_Encrypted(t *testing.T) {
	j := openTestJournal(t, []byte("0123456789abcdef0123456789abcdef"))
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, domain.MediaActivityChanged{Active: false}))
	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.MediaActivityChanged{Active: false}, entries[0].Event)
}

func TestJournal_Truncate(t *testing.T) {
	j := openTestJournal(t, nil)
	ctx := context.Background()

	for _, e := range journalFixture {
		require.NoError(t, j.Append(ctx, e))
	}
	require.NoError(t, j.Truncate(ctx, 2))

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, journalFixture[len(journalFixture)-2:], JournalEvents(entries))
}

func TestJournal_Attach(t *testing.T) {
	j := openTestJournal(t, nil)
	bus := eventbus.New()
	require.NoError(t, j.Attach(context.Background(), bus))

	require.NoError(t, bus.Publish(domain.ProcessStarted{Name: "mpv"}))

	entries, err := j.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ProcessStarted{Name: "mpv"}, entries[0].Event)
}

func TestDecodeEvent_UnknownKind(t *testing.T) {
	_, err := decodeEvent("Bogus", nil)
	assert.ErrorIs(t, err, ErrUnknownJournalKind)
}
