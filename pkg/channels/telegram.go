package channels

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog"

	"github.com/tinyland-inc/crosswire/pkg/commands"
	"github.com/tinyland-inc/crosswire/pkg/config"
	"github.com/tinyland-inc/crosswire/pkg/engine"
	"github.com/tinyland-inc/crosswire/pkg/relay"
)

// TelegramChannel bridges Telegram group chats via long polling.
// Management commands are plain bot commands (/here, /unhere, /bridges).
type TelegramChannel struct {
	*BaseChannel
	cfg    config.TelegramConfig
	engine *engine.Engine
	cmds   *commands.Handler
	bot    *telego.Bot
	runCtx context.Context
	done   chan struct{}
}

func NewTelegramChannel(cfg config.TelegramConfig, eng *engine.Engine, cmds *commands.Handler, log zerolog.Logger) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", relay.PlatformTelegram, log),
		cfg:         cfg,
		engine:      eng,
		cmds:        cmds,
		done:        make(chan struct{}),
	}
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	bot, err := telego.NewBot(c.cfg.Token, telego.WithDiscardLogger())
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram get me: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("telegram long polling: %w", err)
	}

	c.bot = bot
	c.runCtx = ctx
	c.SetRunning(true)
	log := c.Log()
	log.Info().Str("user", me.Username).Msg("telegram connected")

	go func() {
		defer close(c.done)
		for update := range updates {
			if update.Message != nil {
				c.onMessage(update.Message)
			}
		}
	}()
	return nil
}

// Stop waits for the polling loop to drain; polling itself stops when the
// run context is canceled.
func (c *TelegramChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	if c.bot == nil {
		return nil
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *TelegramChannel) onMessage(msg *telego.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	if msg.Chat.Type == telego.ChatTypeChannel {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	ep := relay.Endpoint{Platform: relay.PlatformTelegram, ChannelID: chatID}

	if name, cmd, ok := parseBotCommand(msg.Text); ok {
		c.handleCommand(name, cmd, ep)
		return
	}

	content := c.formatInbound(msg)
	if content == "" {
		return
	}

	replyTo := ""
	if msg.ReplyToMessage != nil {
		replyTo = strconv.Itoa(msg.ReplyToMessage.MessageID)
	}

	c.engine.Dispatch(c.runCtx, relay.InboundMessage{
		Source: relay.MessageRef{
			Endpoint:  ep,
			MessageID: strconv.Itoa(msg.MessageID),
		},
		Sender:  msg.From.FirstName,
		Content: content,
		ReplyTo: replyTo,
	})
}

// parseBotCommand extracts "/cmd arg" from message text, tolerating the
// "/cmd@botname" group-chat form.
func parseBotCommand(text string) (name, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	fields := strings.Fields(text)
	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	if len(fields) > 1 {
		arg = fields[1]
	}
	return name, arg, true
}

func (c *TelegramChannel) handleCommand(name, arg string, ep relay.Endpoint) {
	var response string
	switch name {
	case "here":
		response = c.cmds.Here(c.runCtx, arg, ep)
	case "unhere":
		response = c.cmds.Unhere(c.runCtx, arg, ep)
	case "bridges":
		response = c.cmds.Bridges(c.runCtx)
	default:
		return
	}
	chatID, _ := strconv.ParseInt(ep.ChannelID, 10, 64)
	if _, err := c.bot.SendMessage(c.runCtx, tu.Message(tu.ID(chatID), response)); err != nil {
		log := c.Log()
		log.Warn().Err(err).Str("command", name).Msg("command response failed")
	}
}

func (c *TelegramChannel) formatInbound(msg *telego.Message) string {
	var body string
	switch {
	case msg.Text != "":
		body = msg.Text
	case msg.Caption != "":
		body = msg.Caption
	case msg.Photo != nil:
		body = "[photo]"
	case msg.Document != nil:
		body = "[document]"
	case msg.Sticker != nil:
		body = "[sticker]"
	case msg.Voice != nil:
		body = "[voice]"
	case msg.Video != nil:
		body = "[video]"
	default:
		return ""
	}

	chatName := msg.Chat.Title
	if chatName == "" {
		chatName = strconv.FormatInt(msg.Chat.ID, 10)
	}
	author := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if msg.From.Username != "" {
		author = fmt.Sprintf("%s (@%s)", author, msg.From.Username)
	}
	return fmt.Sprintf("[Telegram %s] %s:\n%s", chatName, author, body)
}

func (c *TelegramChannel) Send(ctx context.Context, to relay.Endpoint, content, replyTo string) ([]string, error) {
	chatID, err := strconv.ParseInt(to.ChannelID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram chat id %q: %w", to.ChannelID, err)
	}

	chunks := SplitText(content, TelegramMessageLimit)
	ids := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		params := tu.Message(tu.ID(chatID), chunk).
			WithLinkPreviewOptions(&telego.LinkPreviewOptions{IsDisabled: true})
		if i == 0 && replyTo != "" {
			if replyID, err := strconv.Atoi(replyTo); err == nil {
				params = params.WithReplyParameters(&telego.ReplyParameters{MessageID: replyID})
			}
		}
		sent, err := c.bot.SendMessage(ctx, params)
		if err != nil {
			return ids, fmt.Errorf("telegram send to %d: %w", chatID, err)
		}
		ids = append(ids, strconv.Itoa(sent.MessageID))
	}
	return ids, nil
}
