package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/tinyland-inc/crosswire/pkg/commands"
	"github.com/tinyland-inc/crosswire/pkg/config"
	"github.com/tinyland-inc/crosswire/pkg/engine"
	"github.com/tinyland-inc/crosswire/pkg/relay"
)

// SlackChannel bridges Slack channels over Socket Mode. Slack has no
// first-class reply reference; relayed replies land as thread responses on
// the counterpart message timestamp.
type SlackChannel struct {
	*BaseChannel
	cfg    config.SlackConfig
	engine *engine.Engine
	cmds   *commands.Handler
	api    *slack.Client
	sock   *socketmode.Client
	selfID string
	runCtx context.Context
	done   chan struct{}
}

func NewSlackChannel(cfg config.SlackConfig, eng *engine.Engine, cmds *commands.Handler, log zerolog.Logger) *SlackChannel {
	return &SlackChannel{
		BaseChannel: NewBaseChannel("slack", relay.PlatformSlack, log),
		cfg:         cfg,
		engine:      eng,
		cmds:        cmds,
		done:        make(chan struct{}),
	}
}

func (c *SlackChannel) Start(ctx context.Context) error {
	api := slack.New(c.cfg.BotToken, slack.OptionAppLevelToken(c.cfg.AppToken))

	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}

	c.api = api
	c.sock = socketmode.New(api)
	c.selfID = auth.UserID
	c.runCtx = ctx
	c.SetRunning(true)
	log := c.Log()
	log.Info().Str("user", auth.User).Msg("slack connected")

	go func() {
		if err := c.sock.RunContext(ctx); err != nil && ctx.Err() == nil {
			log := c.Log()
			log.Error().Err(err).Msg("slack socket mode stopped")
		}
	}()
	go c.eventLoop(ctx)
	return nil
}

func (c *SlackChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	if c.sock == nil {
		return nil
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *SlackChannel) eventLoop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.sock.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				payload, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				c.sock.Ack(*evt.Request)
				c.onEventsAPI(payload)
			case socketmode.EventTypeSlashCommand:
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				c.sock.Ack(*evt.Request, map[string]any{
					"response_type": "ephemeral",
					"text":          c.handleSlashCommand(cmd),
				})
			}
		}
	}
}

func (c *SlackChannel) onEventsAPI(payload slackevents.EventsAPIEvent) {
	event, ok := payload.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Loop guard: skip bot posts (including our own) and non-user
	// subtypes such as edits, joins and deletions.
	if event.BotID != "" || event.User == "" || event.User == c.selfID {
		return
	}
	if event.SubType != "" && event.SubType != "file_share" {
		return
	}

	body := strings.TrimSpace(event.Text)
	if body == "" {
		return
	}

	author := event.User
	if user, err := c.api.GetUserInfo(event.User); err == nil && user.Profile.DisplayName != "" {
		author = user.Profile.DisplayName
	}
	content := fmt.Sprintf("[Slack] %s:\n%s", author, body)

	// In Slack a threaded reply carries the parent timestamp.
	replyTo := ""
	if event.ThreadTimeStamp != "" && event.ThreadTimeStamp != event.TimeStamp {
		replyTo = event.ThreadTimeStamp
	}

	c.engine.Dispatch(c.runCtx, relay.InboundMessage{
		Source: relay.MessageRef{
			Endpoint:  relay.Endpoint{Platform: relay.PlatformSlack, ChannelID: event.Channel},
			MessageID: event.TimeStamp,
		},
		Sender:  author,
		Content: content,
		ReplyTo: replyTo,
	})
}

func (c *SlackChannel) handleSlashCommand(cmd slack.SlashCommand) string {
	ep := relay.Endpoint{Platform: relay.PlatformSlack, ChannelID: cmd.ChannelID}
	arg := strings.TrimSpace(cmd.Text)
	switch cmd.Command {
	case "/here":
		return c.cmds.Here(c.runCtx, arg, ep)
	case "/unhere":
		return c.cmds.Unhere(c.runCtx, arg, ep)
	case "/bridges":
		return c.cmds.Bridges(c.runCtx)
	}
	return ""
}

func (c *SlackChannel) Send(ctx context.Context, to relay.Endpoint, content, replyTo string) ([]string, error) {
	chunks := SplitText(content, SlackMessageLimit)
	ids := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if i == 0 && replyTo != "" {
			opts = append(opts, slack.MsgOptionTS(replyTo))
		}
		_, ts, err := c.api.PostMessageContext(ctx, to.ChannelID, opts...)
		if err != nil {
			return ids, fmt.Errorf("slack send to %s: %w", to.ChannelID, err)
		}
		ids = append(ids, ts)
	}
	return ids, nil
}
