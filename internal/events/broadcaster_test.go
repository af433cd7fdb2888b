package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grailfinance/tokenbank/internal/domain"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroadcaster(4)

	first := b.Subscribe()
	second := b.Subscribe()
	defer b.Unsubscribe(first)
	defer b.Unsubscribe(second)

	b.Publish(domain.VaultEvent{ID: "e1", Kind: domain.EventDeposit})

	require.Equal(t, "e1", (<-first).ID)
	require.Equal(t, "e1", (<-second).ID)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(1)

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(domain.VaultEvent{ID: "e1"})
	b.Publish(domain.VaultEvent{ID: "e2"}) // buffer full, dropped

	require.Equal(t, "e1", (<-ch).ID)
	select {
	case e := <-ch:
		t.Fatalf("expected no further events, got %s", e.ID)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(1)

	ch := b.Subscribe()
	b.Unsubscribe(ch)

	_, open := <-ch
	require.False(t, open)

	// double unsubscribe is a no-op
	b.Unsubscribe(ch)
}
