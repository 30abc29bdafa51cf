package relay

// Platform identifies one of the supported chat platforms.
type Platform string

const (
	PlatformDiscord  Platform = "discord"
	PlatformTelegram Platform = "telegram"
	PlatformSlack    Platform = "slack"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformDiscord, PlatformTelegram, PlatformSlack}

func (p Platform) Valid() bool {
	switch p {
	case PlatformDiscord, PlatformTelegram, PlatformSlack:
		return true
	}
	return false
}

func (p Platform) String() string {
	return string(p)
}

// Endpoint is one addressable channel/chat on one platform.
// (Platform, ChannelID) is the natural key; endpoints are immutable values.
type Endpoint struct {
	Platform  Platform `json:"platform"`
	ChannelID string   `json:"channel_id"`
}

func (e Endpoint) String() string {
	return string(e.Platform) + ":" + e.ChannelID
}

// MessageRef pins one message to the endpoint it lives in. Native message
// IDs are only unique within a chat on some platforms (Telegram), so a bare
// ID without its endpoint is never used as a key.
type MessageRef struct {
	Endpoint
	MessageID string `json:"message_id"`
}

func (r MessageRef) String() string {
	return r.Endpoint.String() + "/" + r.MessageID
}

// InboundMessage is one message event handed to the engine by an adapter.
// Adapters drop their own (engine-authored) messages before building one of
// these, which is the relay loop guard.
type InboundMessage struct {
	Source  MessageRef
	Sender  string
	Content string
	// ReplyTo is the native ID of the replied-to message in the source
	// endpoint, empty when the message is not a reply.
	ReplyTo string
}
