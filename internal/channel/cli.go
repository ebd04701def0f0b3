package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"nanobot/internal/domain"
)

// CLI is the interactive terminal adapter.
type CLI struct {
	enabled bool
	in      io.Reader
	out     io.Writer
	bus     domain.MessageBus
	logger  *slog.Logger
}

type CLIConfig struct {
	Enabled bool
	In      io.Reader
	Out     io.Writer
}

func NewCLI(cfg CLIConfig, bus domain.MessageBus, logger *slog.Logger) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &CLI{
		enabled: cfg.Enabled,
		in:      cfg.In,
		out:     cfg.Out,
		bus:     bus,
		logger:  logger,
	}
}

func (c *CLI) Type() string  { return "cli" }
func (c *CLI) ID() string    { return "cli" }
func (c *CLI) Enabled() bool { return c.enabled }

// Start runs the REPL until EOF, /quit, or context cancellation.
func (c *CLI) Start(ctx context.Context) error {
	fmt.Fprintln(c.out, "Nanobot CLI. Type a message and press Enter. /quit to exit.")
	fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		in := domain.NewTextMessage(line)
		in.ChannelID = "direct"
		in.ChannelType = "cli"
		in.UserID = "user"
		c.bus.PublishInbound(in)
	}
}

func (c *CLI) Stop() error { return nil }

func (c *CLI) Send(ctx context.Context, msg domain.Message) error {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, msg.Content)
	fmt.Fprint(c.out, "You> ")
	return nil
}
