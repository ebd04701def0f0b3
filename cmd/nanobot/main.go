package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nanobot/internal/agent"
	"nanobot/internal/api"
	"nanobot/internal/bus"
	"nanobot/internal/channel"
	"nanobot/internal/config"
	"nanobot/internal/memory"
	"nanobot/internal/provider"
	"nanobot/internal/security"
	"nanobot/internal/session"
	"nanobot/internal/tool"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "nanobot",
		Short: "Nanobot: personal AI assistant gateway",
		Long:  "Nanobot connects chat channels (Telegram, Discord, Slack, WebSocket, CLI) to LLM providers through a tool-using agent loop.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.nanobot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(sessionsCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, nil
}

// setupLogger rebuilds the process logger per the configured level and
// optional log file.
func setupLogger(cfg *config.Config) error {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("cannot open log file: %w", err)
		}
		out = f
	}

	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			workspace := config.ExpandPath(cfg.General.Workspace)
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "workspace", workspace)
			return nil
		},
	}
}

// runtime bundles the wired core shared by chat and gateway.
type runtime struct {
	cfg         *config.Config
	bus         *bus.InMemoryBus
	sessions    *session.Store
	registry    *provider.Registry
	tools       *tool.Registry
	loop        *agent.Loop
	memStore    *memory.Store
}

func buildRuntime(cfg *config.Config) (*runtime, error) {
	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return nil, err
	}

	messageBus := bus.New(cfg.General.BusBufferSize, logger)

	sessions, err := session.NewStore(cfg.General.Workspace, logger)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	registry := provider.NewRegistry(logger)
	if cfg.General.ProvidersFile != "" {
		if err := registry.LoadSpecsFile(cfg.General.ProvidersFile); err != nil {
			logger.Warn("failed to load provider specs file", "path", cfg.General.ProvidersFile, "err", err)
		}
	}

	guard := security.NewGuard(security.GuardConfig{
		Workspace:           cfg.General.Workspace,
		BlockedCommands:     cfg.Tools.Shell.BlockedCommands,
		RestrictToWorkspace: cfg.Tools.File.RestrictToWorkspace,
		Logger:              logger,
	})

	var memStore *memory.Store
	if cfg.Memory.Enabled {
		memStore, err = memory.NewStore(cfg.Memory.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
	}

	tools := tool.NewRegistry(logger)
	tools.Register(tool.NewExecTool(guard, tool.ExecConfig{
		Timeout:   secondsToDuration(cfg.Tools.Shell.TimeoutSeconds),
		MaxOutput: cfg.Tools.Shell.MaxOutputBytes,
	}, logger))
	tools.Register(tool.NewReadFileTool(guard, logger))
	tools.Register(tool.NewWriteFileTool(guard, logger))
	tools.Register(tool.NewMessageTool(messageBus, logger))
	tools.Register(tool.NewMemoryTool(memStore, logger))

	executor := tool.NewExecutor(tools, logger)
	contextBuilder := agent.NewContextBuilder(cfg.General.Workspace, tools, sessions, cfg.General.MaxHistory, logger)

	loop := agent.NewLoop(agent.LoopConfig{
		Registry:      registry,
		Model:         cfg.General.Model,
		Sessions:      sessions,
		Context:       contextBuilder,
		Tools:         tools,
		Executor:      executor,
		Bus:           messageBus,
		Logger:        logger,
		MaxIterations: cfg.General.MaxIterations,
		Concurrency:   cfg.General.MaxConcurrentMessages,
	})

	return &runtime{
		cfg:         cfg,
		bus:         messageBus,
		sessions:    sessions,
		registry:    registry,
		tools:       tools,
		loop:        loop,
		memStore:    memStore,
	}, nil
}

func (r *runtime) close() {
	if r.memStore != nil {
		r.memStore.Close()
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				logger.Warn("config not found, using defaults", "err", err)
				cfg = config.Defaults()
				cfg.General.Workspace = config.ExpandPath(cfg.General.Workspace)
				cfg.Memory.DBPath = config.ExpandPath(cfg.Memory.DBPath)
			}
			if err := setupLogger(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			go rt.loop.Run(ctx)

			manager := channel.NewManager(rt.bus, logger)
			manager.Register(channel.NewCLI(channel.CLIConfig{Enabled: true}, rt.bus, logger))
			if err := manager.StartAll(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			manager.StopAll()
			return nil
		},
	}
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the gateway (all enabled channels + agent loop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := setupLogger(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			go rt.loop.Run(ctx)

			manager := channel.NewManager(rt.bus, logger)
			manager.Register(channel.NewTelegram(channel.TelegramConfig{
				Enabled:   cfg.Channels.Telegram.Enabled,
				Token:     cfg.Channels.Telegram.Token,
				AllowFrom: cfg.Channels.Telegram.AllowFrom,
			}, rt.bus, logger))
			manager.Register(channel.NewDiscord(channel.DiscordConfig{
				Enabled: cfg.Channels.Discord.Enabled,
				Token:   cfg.Channels.Discord.Token,
				GuildID: cfg.Channels.Discord.GuildID,
			}, rt.bus, logger))
			manager.Register(channel.NewSlack(channel.SlackConfig{
				Enabled:  cfg.Channels.Slack.Enabled,
				BotToken: cfg.Channels.Slack.BotToken,
				AppToken: cfg.Channels.Slack.AppToken,
			}, rt.bus, logger))
			manager.Register(channel.NewWebSocketChannel(channel.WebSocketConfig{
				Enabled: cfg.Channels.WebSocket.Enabled,
				Host:    cfg.Channels.WebSocket.Host,
				Port:    cfg.Channels.WebSocket.Port,
				Path:    cfg.Channels.WebSocket.Path,
			}, rt.bus, logger))

			if err := manager.StartAll(ctx); err != nil {
				return err
			}

			if cfg.API.Enabled {
				apiServer := api.NewServer(api.Config{
					Host:   cfg.API.Host,
					Port:   cfg.API.Port,
					APIKey: cfg.API.APIKey,
				}, rt.bus, rt.loop, manager, logger)
				go func() {
					if err := apiServer.Start(ctx); err != nil {
						logger.Error("api server error", "err", err)
					}
				}()
			}

			logger.Info("gateway started", "version", version)
			<-ctx.Done()
			logger.Info("shutting down gateway")
			manager.StopAll()
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and provider status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				fmt.Printf("config: %s (not loaded: %v)\n", cfgPath, err)
				cfg = config.Defaults()
			} else {
				fmt.Printf("config: %s\n", cfgPath)
			}
			fmt.Printf("model: %s\n", cfg.General.Model)
			fmt.Printf("workspace: %s\n", config.ExpandPath(cfg.General.Workspace))

			registry := provider.NewRegistry(logger)
			fmt.Println("providers:")
			for _, spec := range registry.All() {
				state := "no credential"
				if os.Getenv(spec.EnvKey) != "" {
					state = "configured"
				}
				marker := " "
				if registry.MatchByModel(cfg.General.Model) == spec {
					marker = "*"
				}
				fmt.Printf("  %s %-10s %s (%s)\n", marker, spec.Name, state, spec.EnvKey)
			}
			return nil
		},
	}
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage conversation sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := session.NewStore(cfg.General.Workspace, logger)
			if err != nil {
				return err
			}
			sessions := store.List()
			if len(sessions) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			for _, id := range sessions {
				fmt.Println(id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear [session-id]",
		Short: "Delete a session's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := session.NewStore(cfg.General.Workspace, logger)
			if err != nil {
				return err
			}
			if store.Clear(args[0]) {
				fmt.Printf("cleared %s\n", args[0])
			} else {
				fmt.Printf("no such session: %s\n", args[0])
			}
			return nil
		},
	})

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. general.model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.model deepseek-chat)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
