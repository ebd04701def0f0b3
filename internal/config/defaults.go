package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace:             "~/.nanobot/workspace",
			LogLevel:              "info",
			Model:                 "glm-4.6",
			MaxIterations:         20,
			MaxHistory:            50,
			MaxConcurrentMessages: 4,
			BusBufferSize:         64,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled: false,
			},
			Discord: DiscordConfig{
				Enabled: false,
			},
			Slack: SlackConfig{
				Enabled: false,
			},
			WebSocket: WebSocketConfig{
				Enabled: false,
				Host:    "127.0.0.1",
				Port:    8081,
				Path:    "/ws",
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Tools: ToolsConfig{
			Shell: ShellToolConfig{
				TimeoutSeconds:  60,
				MaxOutputBytes:  65536,
				BlockedCommands: defaultBlockedCommands(),
			},
			File: FileToolConfig{
				RestrictToWorkspace: true,
			},
		},
		Memory: MemoryConfig{
			Enabled: true,
			DBPath:  "~/.nanobot/memory.db",
		},
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8080,
		},
	}
}

func defaultBlockedCommands() []string {
	return []string{
		"rm -rf /",
		"rm -rf /*",
		"mkfs",
		"dd if=",
		":(){:|:&};:",
		"chmod -R 777 /",
		"mv /* /dev/null",
		"shutdown",
		"reboot",
	}
}
