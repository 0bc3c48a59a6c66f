package permissions

import api "github.com/OvyFlash/telegram-bot-api"

// IsManager reports whether the member owns the chat or can administer it.
func IsManager(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if member.IsCreator() {
		return true
	}
	return member.IsAdministrator() && (member.CanManageChat || member.CanPromoteMembers)
}

// IsPrivilegedModerator reports whether the member may delete messages and
// restrict users, which is the capability gate for reports and policy
// commands.
func IsPrivilegedModerator(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if IsManager(member) {
		return true
	}
	return member.IsAdministrator() && (member.CanRestrictMembers || member.CanDeleteMessages)
}
