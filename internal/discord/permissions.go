package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker decides who may change guild configuration: members
// with the Manage Server or Administrator permission, plus members holding
// one of the configured admin roles.
type PermissionChecker struct {
	adminRoleIDs []string
}

// NewPermissionChecker creates a PermissionChecker. adminRoleIDs may be
// empty.
func NewPermissionChecker(adminRoleIDs ...string) *PermissionChecker {
	return &PermissionChecker{adminRoleIDs: slices.Clone(adminRoleIDs)}
}

// CanConfigure reports whether the interaction author may change settings.
// Interactions outside a guild (no Member) never may.
func (p *PermissionChecker) CanConfigure(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	const allowed = discordgo.PermissionManageGuild | discordgo.PermissionAdministrator
	if i.Member.Permissions&allowed != 0 {
		return true
	}
	for _, role := range i.Member.Roles {
		if slices.Contains(p.adminRoleIDs, role) {
			return true
		}
	}
	return false
}
