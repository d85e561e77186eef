package realtime

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/realtime/pkg/errors"
)

func TestSendMessageInputNormalize(t *testing.T) {
	config := DefaultConfig()

	t.Run("缺少频道", func(t *testing.T) {
		in := &SendMessageInput{Content: "hi"}
		err := in.normalize(config)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("内容净化后为空", func(t *testing.T) {
		in := &SendMessageInput{ChannelID: "ch1", Content: "  <script>alert(1)</script>  "}
		err := in.normalize(config)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("内容超长", func(t *testing.T) {
		in := &SendMessageInput{ChannelID: "ch1", Content: strings.Repeat("字", config.MaxContentLength+1)}
		err := in.normalize(config)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("按字符数而非字节数验长", func(t *testing.T) {
		// 每个汉字三字节，按字节算会超限
		in := &SendMessageInput{ChannelID: "ch1", Content: strings.Repeat("字", config.MaxContentLength)}
		require.NoError(t, in.normalize(config))
	})

	t.Run("附件截断并丢弃非法地址", func(t *testing.T) {
		urls := []string{"javascript:alert(1)", "ftp://files.example.com/a"}
		for i := 0; i < config.MaxAttachments; i++ {
			urls = append(urls, "https://cdn.example.com/img.png")
		}
		in := &SendMessageInput{ChannelID: "ch1", Content: "hi", Attachments: urls}
		require.NoError(t, in.normalize(config))

		// 先截断到上限，再丢弃其中的非法地址
		assert.Len(t, in.Attachments, config.MaxAttachments-2)
		for _, u := range in.Attachments {
			assert.True(t, strings.HasPrefix(u, "https://"))
		}
	})

	t.Run("提及去重后截断", func(t *testing.T) {
		mentions := []string{"bob", "bob", "carol", "bob"}
		in := &SendMessageInput{ChannelID: "ch1", Content: "hi", Mentions: mentions}
		require.NoError(t, in.normalize(config))
		assert.Equal(t, []string{"bob", "carol"}, in.Mentions, "重复的提及不占用上限")
	})

	t.Run("嵌入内容截断", func(t *testing.T) {
		embeds := make([]json.RawMessage, config.MaxEmbeds+3)
		for i := range embeds {
			embeds[i] = json.RawMessage(`{"kind":"link"}`)
		}
		in := &SendMessageInput{ChannelID: "ch1", Content: "hi", Embeds: embeds}
		require.NoError(t, in.normalize(config))
		assert.Len(t, in.Embeds, config.MaxEmbeds)
	})

	t.Run("内容净化保留正常文本", func(t *testing.T) {
		in := &SendMessageInput{ChannelID: "ch1", Content: "  hello <b>world</b>  "}
		require.NoError(t, in.normalize(config))
		assert.Equal(t, "hello <b>world</b>", in.Content)
	})
}

func TestEditMessageInputNormalize(t *testing.T) {
	config := DefaultConfig()

	t.Run("缺少消息标识", func(t *testing.T) {
		in := &EditMessageInput{Content: "hi"}
		assert.ErrorIs(t, in.normalize(config), errors.ErrInvalidInput)
	})

	t.Run("正常载荷", func(t *testing.T) {
		in := &EditMessageInput{MessageID: "m1", Content: " updated "}
		require.NoError(t, in.normalize(config))
		assert.Equal(t, "updated", in.Content)
	})
}

func TestPresenceInputNormalize(t *testing.T) {
	config := DefaultConfig()

	t.Run("非法状态", func(t *testing.T) {
		for _, status := range []string{"offline", "busy", ""} {
			in := &PresenceInput{Status: status}
			assert.ErrorIs(t, in.normalize(config), errors.ErrInvalidInput, status)
		}
	})

	t.Run("活动描述截断", func(t *testing.T) {
		in := &PresenceInput{
			Status:   "online",
			Activity: strings.Repeat("a", config.MaxActivityLength+50),
		}
		require.NoError(t, in.normalize(config))
		assert.Len(t, in.Activity, config.MaxActivityLength)
	})
}

func TestChannelInputNormalize(t *testing.T) {
	assert.ErrorIs(t, (&ChannelInput{}).normalize(), errors.ErrInvalidInput)
	assert.NoError(t, (&ChannelInput{ChannelID: "ch1"}).normalize())
}

func TestVoiceInputNormalize(t *testing.T) {
	assert.ErrorIs(t, (&VoiceInput{}).normalize(), errors.ErrInvalidInput)
	assert.NoError(t, (&VoiceInput{ChannelID: "v1", Muted: true}).normalize())
}
