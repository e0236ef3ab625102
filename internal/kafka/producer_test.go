package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducerConfiguresKeyedWriter(t *testing.T) {
	p := NewProducer([]string{"broker-1:9092", "broker-2:9092"}, "push")
	t.Cleanup(func() { _ = p.Close() })

	assert.Equal(t, "push", p.Topic())
	assert.Equal(t, "push", p.writer.Topic)
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
	assert.Equal(t, kafka.RequireOne, p.writer.RequiredAcks)
}

func TestPublishRejectsUnencodableValue(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "push")
	t.Cleanup(func() { _ = p.Close() })

	err := p.Publish(context.Background(), "u2", make(chan int))
	require.Error(t, err)
}

func TestCloseWithoutWriter(t *testing.T) {
	assert.NoError(t, (&Producer{}).Close())
}
