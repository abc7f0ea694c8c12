package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestToMessage(t *testing.T) {
	ts := time.Now()
	msg := toMessage(&kgo.Record{
		Topic:     "docproof.registry.events",
		Partition: 3,
		Offset:    42,
		Key:       []byte("abc"),
		Value:     []byte(`{}`),
		Timestamp: ts,
		Headers:   []kgo.RecordHeader{{Key: "event_type", Value: []byte("created")}},
	})

	assert.Equal(t, "docproof.registry.events", msg.Topic)
	assert.Equal(t, int32(3), msg.Partition)
	assert.Equal(t, int64(42), msg.Offset)
	assert.Equal(t, "abc", string(msg.Key))
	assert.Equal(t, "created", msg.Headers["event_type"])
	assert.Equal(t, ts, msg.Timestamp)
}

func TestToMessage_NoHeaders(t *testing.T) {
	msg := toMessage(&kgo.Record{Topic: "t"})
	assert.Nil(t, msg.Headers)
}
