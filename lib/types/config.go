// Configuration and settings types
package types

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Moderation  ModerationConfig  `mapstructure:"moderation"`
	Communities []CommunityConfig `mapstructure:"communities"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bind_address"`
	DataPath    string `mapstructure:"data_path"`
	APIKey      string `mapstructure:"api_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
	Path   string `mapstructure:"path"`
}

// GatewayConfig holds the directory/enforcement gateway configuration
type GatewayConfig struct {
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Timeout int    `mapstructure:"timeout"`
}

// ModerationConfig holds moderation policy configuration
type ModerationConfig struct {
	// NumberDirectSanctions controls whether warn/mute/kick/ban/unban/note
	// actions invoked directly receive a ledger case number. Reports are
	// always numbered regardless of this setting.
	NumberDirectSanctions bool `mapstructure:"number_direct_sanctions"`

	// GraceDelaySeconds is how long a closing notice stays visible before
	// a ticket or report channel is reclaimed
	GraceDelaySeconds int `mapstructure:"grace_delay_seconds"`

	// TranscriptChunkSize is the maximum size in characters of a single
	// transcript delivery unit
	TranscriptChunkSize int `mapstructure:"transcript_chunk_size"`
}

// CommunityConfig holds per-community settings
type CommunityConfig struct {
	ID               string `mapstructure:"id"`
	MuteRoleID       string `mapstructure:"mute_role_id"`
	TicketCategoryID string `mapstructure:"ticket_category_id"`
	ReportCategoryID string `mapstructure:"report_category_id"`
	LogChannelID     string `mapstructure:"log_channel_id"`
	ArchiveChannelID string `mapstructure:"archive_channel_id"`
}
