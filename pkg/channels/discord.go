package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/tinyland-inc/crosswire/pkg/commands"
	"github.com/tinyland-inc/crosswire/pkg/config"
	"github.com/tinyland-inc/crosswire/pkg/engine"
	"github.com/tinyland-inc/crosswire/pkg/relay"
)

// DiscordChannel bridges Discord guild channels. Management commands are
// registered as slash commands; acknowledgements are ephemeral.
type DiscordChannel struct {
	*BaseChannel
	cfg     config.DiscordConfig
	engine  *engine.Engine
	cmds    *commands.Handler
	session *discordgo.Session
	runCtx  context.Context
}

var discordCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "here",
		Description: "Add this channel to a cross-platform bridge.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "bridge",
				Description: "Bridge name (default: default)",
			},
		},
	},
	{
		Name:        "unhere",
		Description: "Remove this channel from a bridge.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "bridge",
				Description: "Bridge name (default: default)",
			},
		},
	},
	{
		Name:        "bridges",
		Description: "Show configured bridges.",
	},
}

func NewDiscordChannel(cfg config.DiscordConfig, eng *engine.Engine, cmds *commands.Handler, log zerolog.Logger) *DiscordChannel {
	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", relay.PlatformDiscord, log),
		cfg:         cfg,
		engine:      eng,
		cmds:        cmds,
	}
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + c.cfg.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	c.runCtx = ctx
	session.AddHandler(c.onMessageCreate)
	session.AddHandler(c.onInteractionCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	c.session = session

	if err := c.registerCommands(); err != nil {
		_ = session.Close()
		return err
	}

	c.SetRunning(true)
	log := c.Log()
	log.Info().Str("user", session.State.User.Username).Msg("discord connected")
	return nil
}

func (c *DiscordChannel) registerCommands() error {
	appID := c.session.State.User.ID
	for _, cmd := range discordCommands {
		if _, err := c.session.ApplicationCommandCreate(appID, c.cfg.GuildID, cmd); err != nil {
			return fmt.Errorf("register /%s command: %w", cmd.Name, err)
		}
	}
	return nil
}

func (c *DiscordChannel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func (c *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Loop guard: never relay our own or other bots' messages.
	if m.Author == nil || m.Author.Bot || m.WebhookID != "" {
		return
	}
	if m.Author.ID == s.State.User.ID {
		return
	}
	if m.GuildID == "" {
		return
	}
	if m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply {
		return
	}

	content := c.formatInbound(s, m)
	if content == "" {
		return
	}

	replyTo := ""
	if m.MessageReference != nil && m.MessageReference.MessageID != "" {
		replyTo = m.MessageReference.MessageID
	}

	c.engine.Dispatch(c.runCtx, relay.InboundMessage{
		Source: relay.MessageRef{
			Endpoint:  relay.Endpoint{Platform: relay.PlatformDiscord, ChannelID: m.ChannelID},
			MessageID: m.ID,
		},
		Sender:  m.Author.Username,
		Content: content,
		ReplyTo: replyTo,
	})
}

func (c *DiscordChannel) formatInbound(s *discordgo.Session, m *discordgo.MessageCreate) string {
	parts := make([]string, 0, 1+len(m.Attachments))
	if text := strings.TrimSpace(m.Content); text != "" {
		parts = append(parts, text)
	}
	for _, att := range m.Attachments {
		parts = append(parts, att.URL)
	}
	body := strings.TrimSpace(strings.Join(parts, "\n"))
	if body == "" {
		return ""
	}

	channelName := m.ChannelID
	if channel, err := s.State.Channel(m.ChannelID); err == nil && channel.Name != "" {
		channelName = channel.Name
	}
	author := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		author = m.Member.Nick
	}
	return fmt.Sprintf("[Discord #%s] %s:\n%s", channelName, author, body)
}

func (c *DiscordChannel) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	ep := relay.Endpoint{Platform: relay.PlatformDiscord, ChannelID: i.ChannelID}

	var response string
	switch data.Name {
	case "here":
		response = c.cmds.Here(c.runCtx, optionValue(data.Options, "bridge"), ep)
	case "unhere":
		response = c.cmds.Unhere(c.runCtx, optionValue(data.Options, "bridge"), ep)
	case "bridges":
		response = c.cmds.Bridges(c.runCtx)
	default:
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: response,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log := c.Log()
		log.Warn().Err(err).Str("command", data.Name).Msg("interaction response failed")
	}
}

func optionValue(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func (c *DiscordChannel) Send(_ context.Context, to relay.Endpoint, content, replyTo string) ([]string, error) {
	chunks := SplitText(content, DiscordMessageLimit)
	ids := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		send := &discordgo.MessageSend{
			Content: chunk,
			// Relayed content is untrusted; never let it ping anyone.
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		}
		if i == 0 && replyTo != "" {
			send.Reference = &discordgo.MessageReference{
				MessageID: replyTo,
				ChannelID: to.ChannelID,
			}
		}
		sent, err := c.session.ChannelMessageSendComplex(to.ChannelID, send)
		if err != nil {
			return ids, fmt.Errorf("discord send to %s: %w", to.ChannelID, err)
		}
		ids = append(ids, sent.ID)
	}
	return ids, nil
}
