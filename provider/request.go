package provider

import (
	"strings"
	"time"

	"github.com/jonwraymond/msgops/fault"
)

// Kind discriminates SendRequest variants.
type Kind string

const (
	// KindTemplateChat is a pre-approved template delivered over a chat channel.
	KindTemplateChat Kind = "template_chat"
	// KindShortText is a short plain-text message.
	KindShortText Kind = "short_text"
	// KindLongText is a long plain-text message with an optional subject.
	KindLongText Kind = "long_text"
	// KindMultimedia is a message carrying an image.
	KindMultimedia Kind = "multimedia"
)

// Kinds returns every request kind.
func Kinds() []Kind {
	return []Kind{KindTemplateChat, KindShortText, KindLongText, KindMultimedia}
}

// SendRequest is a message to deliver. The concrete type determines which
// fields are legal; adapters call Validate at their boundary.
type SendRequest interface {
	Kind() Kind
	Base() Envelope
	Validate() *fault.Error
}

// Envelope holds the fields common to every request kind.
type Envelope struct {
	// MessageID is the caller-assigned id. Adapters mint one when empty.
	MessageID string `json:"messageId,omitempty"`

	// To is the recipient address (phone number or channel-specific id).
	To string `json:"to"`

	// From is the sender address.
	From string `json:"from,omitempty"`

	// ScheduledAt requests delayed delivery. The zero value sends now.
	ScheduledAt time.Time `json:"scheduledAt,omitzero"`

	// Tags are opaque caller labels forwarded to the backend.
	Tags map[string]string `json:"tags,omitempty"`
}

func (e Envelope) validate() *fault.Error {
	if strings.TrimSpace(e.To) == "" {
		return invalid("recipient is required")
	}
	return nil
}

// Button is an action attached to a template chat message.
type Button struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
	Value string `json:"value,omitempty"`
}

// Fallback is the plain-text message a backend sends when template
// delivery fails. Support varies per backend; partial support is reported
// as a SendResult warning.
type Fallback struct {
	Kind    Kind   `json:"kind"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text"`
}

// TemplateChat sends a registered template over a chat channel.
type TemplateChat struct {
	Envelope
	TemplateCode string            `json:"templateCode"`
	ChannelKey   string            `json:"channelKey"`
	Variables    map[string]string `json:"variables,omitempty"`
	Buttons      []Button          `json:"buttons,omitempty"`
	Fallback     *Fallback         `json:"fallback,omitempty"`
}

// Kind implements SendRequest.
func (TemplateChat) Kind() Kind { return KindTemplateChat }

// Base implements SendRequest.
func (r TemplateChat) Base() Envelope { return r.Envelope }

// Validate implements SendRequest.
func (r TemplateChat) Validate() *fault.Error {
	if err := r.Envelope.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.TemplateCode) == "" {
		return invalid("template code is required")
	}
	if strings.TrimSpace(r.ChannelKey) == "" {
		return invalid("channel key is required")
	}
	if r.Fallback != nil {
		if r.Fallback.Kind != KindShortText && r.Fallback.Kind != KindLongText {
			return invalid("fallback kind must be short_text or long_text")
		}
		if r.Fallback.Text == "" {
			return invalid("fallback text is required")
		}
	}
	return nil
}

// ShortText sends a short plain-text message.
type ShortText struct {
	Envelope
	Text string `json:"text"`
}

// Kind implements SendRequest.
func (ShortText) Kind() Kind { return KindShortText }

// Base implements SendRequest.
func (r ShortText) Base() Envelope { return r.Envelope }

// Validate implements SendRequest.
func (r ShortText) Validate() *fault.Error {
	if err := r.Envelope.validate(); err != nil {
		return err
	}
	if r.Text == "" {
		return invalid("text is required")
	}
	return nil
}

// LongText sends a long plain-text message.
type LongText struct {
	Envelope
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text"`
}

// Kind implements SendRequest.
func (LongText) Kind() Kind { return KindLongText }

// Base implements SendRequest.
func (r LongText) Base() Envelope { return r.Envelope }

// Validate implements SendRequest.
func (r LongText) Validate() *fault.Error {
	if err := r.Envelope.validate(); err != nil {
		return err
	}
	if r.Text == "" {
		return invalid("text is required")
	}
	return nil
}

// Multimedia sends a message with an image.
type Multimedia struct {
	Envelope
	Subject  string `json:"subject,omitempty"`
	Text     string `json:"text,omitempty"`
	ImageRef string `json:"imageRef"`
}

// Kind implements SendRequest.
func (Multimedia) Kind() Kind { return KindMultimedia }

// Base implements SendRequest.
func (r Multimedia) Base() Envelope { return r.Envelope }

// Validate implements SendRequest.
func (r Multimedia) Validate() *fault.Error {
	if err := r.Envelope.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.ImageRef) == "" {
		return invalid("image reference is required")
	}
	return nil
}

// invalid builds a validation failure. It never reached a backend.
func invalid(msg string) *fault.Error {
	return fault.Local(fault.CodeInvalidRequest, "provider", msg, nil).WithContext(fault.KeyReason, "validation")
}

var (
	_ SendRequest = TemplateChat{}
	_ SendRequest = ShortText{}
	_ SendRequest = LongText{}
	_ SendRequest = Multimedia{}
)
