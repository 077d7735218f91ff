// Package settings exposes the per-community configuration the moderation
// core consumes. The core only reads these values; administration of them
// lives elsewhere.
package settings

import (
	"fmt"

	"github.com/wardenkit/warden/lib/config"
	"github.com/wardenkit/warden/lib/types"
)

// Community holds the per-community settings the workflows need
type Community struct {
	// ID is the community id
	ID string

	// MuteRoleID is the role applied by mute sanctions
	MuteRoleID string

	// TicketCategoryID is the category ticket channels are created under
	TicketCategoryID string

	// ReportCategoryID is the category report channels are created under
	ReportCategoryID string

	// LogChannelID is the audit log destination, empty if none configured
	LogChannelID string

	// ArchiveChannelID is the transcript destination, empty if none
	// configured
	ArchiveChannelID string
}

// Provider resolves per-community settings
type Provider interface {
	// Community returns the settings for a community. Unknown communities
	// resolve to empty settings, not an error; callers decide which fields
	// are mandatory for their operation.
	Community(communityID string) (*Community, error)
}

// ConfigProvider reads community settings from the application config
type ConfigProvider struct{}

// NewConfigProvider creates a config-backed settings provider
func NewConfigProvider() *ConfigProvider {
	return &ConfigProvider{}
}

// Community returns the settings for a community from config.yaml
func (p *ConfigProvider) Community(communityID string) (*Community, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	for _, c := range cfg.Communities {
		if c.ID == communityID {
			return fromConfig(&c), nil
		}
	}

	// Unknown community: empty settings
	return &Community{ID: communityID}, nil
}

func fromConfig(c *types.CommunityConfig) *Community {
	return &Community{
		ID:               c.ID,
		MuteRoleID:       c.MuteRoleID,
		TicketCategoryID: c.TicketCategoryID,
		ReportCategoryID: c.ReportCategoryID,
		LogChannelID:     c.LogChannelID,
		ArchiveChannelID: c.ArchiveChannelID,
	}
}

// StaticProvider serves a fixed settings map; used by tests
type StaticProvider struct {
	// Communities is keyed by community id
	Communities map[string]*Community
}

// NewStaticProvider creates a provider over a fixed map
func NewStaticProvider(communities map[string]*Community) *StaticProvider {
	if communities == nil {
		communities = make(map[string]*Community)
	}
	return &StaticProvider{Communities: communities}
}

// Community returns the fixed settings for a community
func (p *StaticProvider) Community(communityID string) (*Community, error) {
	if c, ok := p.Communities[communityID]; ok {
		return c, nil
	}
	return &Community{ID: communityID}, nil
}
