package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nanobot/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const slackMaxMsgLen = 4000

// Slack is the Slack adapter, connected via Socket Mode.
type Slack struct {
	botToken string
	appToken string
	enabled  bool

	client *slack.Client
	botUID string // the bot's own user ID, to avoid replying to itself
	bus    domain.MessageBus
	logger *slog.Logger
}

type SlackConfig struct {
	Enabled  bool
	BotToken string
	AppToken string
}

func NewSlack(cfg SlackConfig, bus domain.MessageBus, logger *slog.Logger) *Slack {
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.AppToken != "",
		bus:      bus,
		logger:   logger,
	}
}

func (s *Slack) Type() string  { return "slack" }
func (s *Slack) ID() string    { return "slack" }
func (s *Slack) Enabled() bool { return s.enabled }

// Start connects via Socket Mode and listens for events until ctx is
// cancelled.
func (s *Slack) Start(ctx context.Context) error {
	api := slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
	s.client = api

	authResp, err := api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)

	socketClient := socketmode.New(api)

	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleEventsAPI(eventsAPIEvent)
			default:
				// Unacked events make Socket Mode disconnect.
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) Stop() error { return nil }

func (s *Slack) Send(ctx context.Context, msg domain.Message) error {
	for _, chunk := range splitMessage(msg.Content, slackMaxMsgLen) {
		_, _, err := s.client.PostMessage(msg.ChannelID, slack.MsgOptionText(chunk, false))
		if err != nil {
			return fmt.Errorf("slack send: %w", err)
		}
	}
	return nil
}

func (s *Slack) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.User == s.botUID || ev.User == "" || ev.SubType != "" {
			return
		}
		s.logger.Info("slack message received", "user", ev.User, "channel", ev.Channel, "content_len", len(ev.Text))
		s.publish(ev.Channel, ev.User, ev.Text)

	case *slackevents.AppMentionEvent:
		content := ev.Text
		if idx := strings.Index(content, ">"); idx >= 0 {
			content = strings.TrimSpace(content[idx+1:])
		}
		s.logger.Info("slack mention received", "user", ev.User, "channel", ev.Channel)
		s.publish(ev.Channel, ev.User, content)
	}
}

func (s *Slack) publish(channelID, userID, content string) {
	in := domain.NewTextMessage(content)
	in.ChannelID = channelID
	in.ChannelType = "slack"
	in.UserID = userID
	in.Timestamp = time.Now()
	s.bus.PublishInbound(in)
}
