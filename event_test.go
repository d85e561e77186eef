package realtime

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/realtime/pkg/errors"
)

func TestFrameDecode(t *testing.T) {
	raw := []byte(`{
		"type": "event",
		"event": "message:send",
		"request_id": "req-1",
		"data": {"channel_id": "ch1", "content": "hello"}
	}`)

	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, FrameTypeEvent, frame.Type)
	assert.Equal(t, EventMessageSend, frame.Event)
	assert.Equal(t, "req-1", frame.RequestID)

	var in SendMessageInput
	require.NoError(t, frame.Unmarshal(&in))
	assert.Equal(t, "ch1", in.ChannelID)
	assert.Equal(t, "hello", in.Content)
}

func TestAckEncoding(t *testing.T) {
	t.Run("成功回执", func(t *testing.T) {
		ack := NewAck("req-1", map[string]any{"message_id": "m1"})
		assert.Equal(t, FrameTypeAck, ack.Type)
		assert.True(t, ack.Success)
		assert.NotZero(t, ack.Timestamp)

		data, err := json.Marshal(ack)
		require.NoError(t, err)
		assert.NotContains(t, string(data), `"code"`, "成功回执不携带错误码")
	})

	t.Run("失败回执取业务错误码", func(t *testing.T) {
		ack := NewErrorAck("req-1", errors.ErrMessageTooOld)
		assert.False(t, ack.Success)
		assert.Equal(t, errors.CodeMessageTooOld, ack.Code)
		assert.Equal(t, errors.ErrMessageTooOld.Message, ack.Error)
	})

	t.Run("包裹的底层错误不外泄", func(t *testing.T) {
		cause := fmt.Errorf("dial tcp 10.0.0.5:3306: connect refused")
		ack := NewErrorAck("req-1", errors.ErrDatabase.WithError(cause))
		assert.Equal(t, errors.CodeDatabase, ack.Code)
		assert.NotContains(t, ack.Error, "10.0.0.5", "内部地址不应出现在回执里")

		data, err := json.Marshal(ack)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "10.0.0.5")
	})

	t.Run("非业务错误归入内部错误", func(t *testing.T) {
		ack := NewErrorAck("req-1", fmt.Errorf("plain failure"))
		assert.Equal(t, errors.CodeInternal, ack.Code)
		assert.NotContains(t, ack.Error, "plain failure")
	})
}

func TestErrorEventEncoding(t *testing.T) {
	ev := NewErrorEvent(EventMessageSend, errors.ErrForbidden)
	assert.Equal(t, FrameTypeError, ev.Type)
	assert.Equal(t, EventMessageSend, ev.Event)
	assert.Equal(t, errors.CodeForbidden, ev.Code)
}

func TestPushEncoding(t *testing.T) {
	push := NewPush(EventMessageNew, &TypingPayload{UserID: "u1", ChannelID: "ch1"})

	data, err := json.Marshal(push)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "event", decoded["type"])
	assert.Equal(t, EventMessageNew, decoded["event"])
	assert.NotNil(t, decoded["timestamp"])
}
