package eventstore

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
	"github.com/eliteGoblin/cdsp-autoswitch/internal/eventbus"
)

func TestStore_AppendPreservesOrder(t *testing.T) {
	s := New()
	s.Append(domain.MediaActivityChanged{Active: true})
	s.Append(domain.MediaActivityChanged{Active: false})

	assert.Equal(t, []domain.Event{
		domain.MediaActivityChanged{Active: true},
		domain.MediaActivityChanged{Active: false},
	}, s.All())
	assert.Equal(t, 2, s.Len())
}

func TestStore_AllReturnsCopy(t *testing.T) {
	s := New()
	s.Append(domain.ProcessStarted{Name: "kodi"})

	events := s.All()
	events[0] = domain.ProcessStopped{Name: "kodi"}
	_ = append(events, domain.ProcessStarted{Name: "mpv"})

	assert.Equal(t, []domain.Event{domain.ProcessStarted{Name: "kodi"}}, s.All())
}

func TestStore_ReplayDoesNotConsume(t *testing.T) {
	s := New()
	s.Append(domain.MediaActivityChanged{Active: true})
	s.Append(domain.MediaActivityChanged{Active: false})

	replayBus := eventbus.New()
	var received []domain.Event
	require.NoError(t, replayBus.Subscribe(domain.KindMediaActivityChanged, func(e domain.Event) error {
		received = append(received, e)
		return nil
	}))

	require.NoError(t, s.Replay(replayBus))
	require.NoError(t, s.Replay(replayBus))

	assert.Len(t, received, 4)
	assert.Equal(t, domain.MediaActivityChanged{Active: true}, received[0])
	assert.Equal(t, domain.MediaActivityChanged{Active: false}, received[1])
	assert.Equal(t, 2, s.Len())
}

func TestStore_ReplayStopsOnHandlerError(t *testing.T) {
	s := New()
	s.Append(domain.ProcessStarted{Name: "kodi"})
	s.Append(domain.ProcessStarted{Name: "mpv"})

	bus := eventbus.New()
	calls := 0
	boom := errors.New("boom")
	require.NoError(t, bus.Subscribe(domain.KindAny, func(domain.Event) error {
		calls++
		return boom
	}))

	err := s.Replay(bus)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

// A store-backed bus and a fresh bus fed by replay must observe the same
// handler outputs in the same order.
func TestStore_ReplayEquivalence(t *testing.T) {
	wire := func(bus *eventbus.Bus, out *[]string) {
		require.NoError(t, bus.Subscribe(domain.KindMediaActivityChanged, func(e domain.Event) error {
			active := e.(domain.MediaActivityChanged).Active
			profile := "music"
			if active {
				profile = "cinema"
			}
			return bus.Publish(domain.PolicyDecision{Profile: profile, Reason: "test"})
		}))
		require.NoError(t, bus.Subscribe(domain.KindPolicyDecision, func(e domain.Event) error {
			*out = append(*out, e.(domain.PolicyDecision).Profile)
			return nil
		}))
	}

	original := eventbus.New()
	store := New()
	var seenA []string
	wire(original, &seenA)

	for _, active := range []bool{true, false, true} {
		store.Append(domain.MediaActivityChanged{Active: active})
		require.NoError(t, original.Publish(domain.MediaActivityChanged{Active: active}))
	}

	fresh := eventbus.New()
	var seenB []string
	wire(fresh, &seenB)
	require.NoError(t, store.Replay(fresh))

	if diff := cmp.Diff(seenA, seenB); diff != "" {
		t.Errorf("replay mismatch (-original +replay):\n%s", diff)
	}
}

func TestStore_Attach(t *testing.T) {
	bus := eventbus.New()
	s := New()
	require.NoError(t, s.Attach(bus))

	require.NoError(t, bus.Publish(domain.ProcessStarted{Name: "kodi"}))
	require.NoError(t, bus.Publish(domain.SwitchIntent{Profile: "cinema", Variant: "night", Reason: domain.ReasonMediaActive}))

	assert.Equal(t, []domain.Event{
		domain.ProcessStarted{Name: "kodi"},
		domain.SwitchIntent{Profile: "cinema", Variant: "night", Reason: domain.ReasonMediaActive},
	}, s.All())
}

func TestStore_Restore(t *testing.T) {
	s := New()
	s.Restore([]domain.Event{domain.MediaActivityChanged{Active: true}})
	s.Append(domain.MediaActivityChanged{Active: false})

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, domain.MediaActivityChanged{Active: true}, s.All()[0])
}
