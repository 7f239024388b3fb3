package broadcast_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/devflow/pkg/broadcast"
	"github.com/dukex/devflow/pkg/channels/gochannel"
	"github.com/dukex/devflow/pkg/eventbus"
	"github.com/dukex/devflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayForwardsBusEnvelopesToHub(t *testing.T) {
	t.Parallel()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(discardLogger(), pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	hub := broadcast.NewHub(discardLogger())
	subscriber := &fakeSubscriber{id: "a", accept: true}
	hub.Subscribe("acme-web", subscriber)

	require.NoError(t, broadcast.Relay(ctx, bus, hub, discardLogger()))

	worker := broadcast.NewBusBroadcaster(bus)
	require.NoError(t, worker.Broadcast(ctx, broadcast.NewEnvelope(models.EnvelopeExecutionUpdate, "acme-web", map[string]any{"progress": 50.0})))

	require.Eventually(t, func() bool {
		return len(subscriber.received()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.EnvelopeExecutionUpdate, subscriber.received()[0].Type)
}
