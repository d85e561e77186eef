package realtime

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/tokmz/realtime/pkg/errors"
	"github.com/tokmz/realtime/pkg/sanitize"
	"github.com/tokmz/realtime/utils/array"
)

// SendMessageInput message:send 载荷
type SendMessageInput struct {
	ChannelID   string            `json:"channel_id"`
	Content     string            `json:"content"`
	ReplyToID   string            `json:"reply_to_id,omitempty"`
	Attachments []string          `json:"attachments,omitempty"`
	Mentions    []string          `json:"mentions,omitempty"`
	Embeds      []json.RawMessage `json:"embeds,omitempty"`
}

// normalize 清洗并校验载荷。内容先净化再验长度，
// 超限的附件、提及与嵌入内容按上限截断而不报错。
func (in *SendMessageInput) normalize(config *Config) error {
	if in.ChannelID == "" {
		return errors.ErrInvalidInput.WithMessage("channel_id is required")
	}
	in.Content = sanitize.Text(in.Content)
	if length := utf8.RuneCountInString(in.Content); length == 0 {
		return errors.ErrInvalidInput.WithMessage("content is required")
	} else if length > config.MaxContentLength {
		return errors.ErrInvalidInput.WithMessage("content exceeds maximum length")
	}
	in.Attachments = clampURLs(in.Attachments, config.MaxAttachments)
	// 先去重再截断，重复的提及不占用上限
	in.Mentions = sanitize.ClampStrings(array.SliceUnique(in.Mentions), config.MaxMentions, maxIDLength)
	if len(in.Embeds) > config.MaxEmbeds {
		in.Embeds = in.Embeds[:config.MaxEmbeds]
	}
	return nil
}

// EditMessageInput message:edit 载荷
type EditMessageInput struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

func (in *EditMessageInput) normalize(config *Config) error {
	if in.MessageID == "" {
		return errors.ErrInvalidInput.WithMessage("message_id is required")
	}
	in.Content = sanitize.Text(in.Content)
	if length := utf8.RuneCountInString(in.Content); length == 0 {
		return errors.ErrInvalidInput.WithMessage("content is required")
	} else if length > config.MaxContentLength {
		return errors.ErrInvalidInput.WithMessage("content exceeds maximum length")
	}
	return nil
}

// DeleteMessageInput message:delete 载荷
type DeleteMessageInput struct {
	MessageID string `json:"message_id"`
}

func (in *DeleteMessageInput) normalize() error {
	if in.MessageID == "" {
		return errors.ErrInvalidInput.WithMessage("message_id is required")
	}
	return nil
}

// ChannelInput 只携带频道标识的载荷（typing、channel:join/leave、voice:leave）
type ChannelInput struct {
	ChannelID string `json:"channel_id"`
}

func (in *ChannelInput) normalize() error {
	if in.ChannelID == "" {
		return errors.ErrInvalidInput.WithMessage("channel_id is required")
	}
	return nil
}

// PresenceInput presence:update 载荷
type PresenceInput struct {
	Status     string `json:"status"`
	Activity   string `json:"activity,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
}

func (in *PresenceInput) normalize(config *Config) error {
	if !ValidPresenceStatus(in.Status) {
		return errors.ErrInvalidInput.WithMessage("unsupported presence status")
	}
	in.Activity = sanitize.TextN(in.Activity, config.MaxActivityLength)
	in.DeviceType = sanitize.TextN(in.DeviceType, maxIDLength)
	return nil
}

// VoiceInput voice:join 与 voice:update 载荷
type VoiceInput struct {
	ChannelID string `json:"channel_id"`
	Muted     bool   `json:"muted"`
	Deafened  bool   `json:"deafened"`
	Streaming bool   `json:"streaming"`
}

func (in *VoiceInput) normalize() error {
	if in.ChannelID == "" {
		return errors.ErrInvalidInput.WithMessage("channel_id is required")
	}
	return nil
}

// maxIDLength 标识符类字段的长度上限
const maxIDLength = 64

// clampURLs 截断到上限并净化每个地址，无效地址被丢弃
func clampURLs(urls []string, max int) []string {
	if len(urls) > max {
		urls = urls[:max]
	}
	out := urls[:0]
	for _, u := range urls {
		if cleaned := sanitize.URL(u); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}
