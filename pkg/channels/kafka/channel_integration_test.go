package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/devflow/pkg/channels/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func TestCreateChannel_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_CREATE_TOPICS": "true",
	}))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	const topic = "devflow.jobs.test"

	admin, err := sarama.NewClusterAdmin(brokers, sarama.NewConfig())
	require.NoError(t, err)
	require.NoError(t, admin.CreateTopic(topic, &sarama.TopicDetail{NumPartitions: 1, ReplicationFactor: 1}, false))
	require.NoError(t, admin.Close())

	publisher, subscriber, err := kafka.CreateChannel(watermill.NopLogger{}, brokers, "cg-devflow-test")
	require.NoError(t, err)

	defer func() {
		_ = publisher.Close()
		_ = subscriber.Close()
	}()

	messages, err := subscriber.Subscribe(ctx, topic)
	require.NoError(t, err)

	sent := message.NewMessage(watermill.NewUUID(), []byte(`{"task":"process_event"}`))
	sent.Metadata.Set("task", "process_event")
	require.NoError(t, publisher.Publish(topic, sent))

	select {
	case received := <-messages:
		assert.Equal(t, sent.UUID, received.UUID)
		assert.JSONEq(t, `{"task":"process_event"}`, string(received.Payload))
		assert.Equal(t, "process_event", received.Metadata.Get("task"))
		received.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for kafka message")
	}
}
