package channel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nanobot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const discordMaxMsgLen = 2000

// Discord is the Discord bot adapter.
type Discord struct {
	token   string
	guildID string
	enabled bool

	session *discordgo.Session
	bus     domain.MessageBus
	logger  *slog.Logger
}

type DiscordConfig struct {
	Enabled bool
	Token   string
	GuildID string
}

func NewDiscord(cfg DiscordConfig, bus domain.MessageBus, logger *slog.Logger) *Discord {
	return &Discord{
		token:   cfg.Token,
		guildID: cfg.GuildID,
		enabled: cfg.Enabled && cfg.Token != "",
		bus:     bus,
		logger:  logger,
	}
}

func (d *Discord) Type() string  { return "discord" }
func (d *Discord) ID() string    { return "discord" }
func (d *Discord) Enabled() bool { return d.enabled }

// Start opens the gateway connection and listens until ctx is cancelled.
func (d *Discord) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	d.session = session

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author.ID == s.State.User.ID {
			return
		}
		if d.guildID != "" && m.GuildID != d.guildID {
			return
		}

		d.logger.Info("discord message received",
			"author", m.Author.Username,
			"channel_id", m.ChannelID,
			"content_len", len(m.Content),
		)

		in := domain.NewTextMessage(m.Content)
		in.ChannelID = m.ChannelID
		in.ChannelType = "discord"
		in.UserID = m.Author.ID
		in.UserName = m.Author.Username
		in.Timestamp = time.Now()
		d.bus.PublishInbound(in)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

func (d *Discord) Stop() error { return nil }

func (d *Discord) Send(ctx context.Context, msg domain.Message) error {
	for _, chunk := range splitMessage(msg.Content, discordMaxMsgLen) {
		if _, err := d.session.ChannelMessageSend(msg.ChannelID, chunk); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}
