package registration

import (
	"slices"

	"holclub_bot/config"
	"holclub_bot/database"
)

// CanDecide: может ли пользователь подтверждать оплату по мероприятию.
func CanDecide(policy config.ApprovalPolicy, bootstrapAdmins []int64, decider *database.User, ev *database.Event) bool {
	if decider == nil || ev == nil {
		return false
	}
	if decider.Role == database.RoleAdmin || slices.Contains(bootstrapAdmins, decider.ID) {
		return true
	}
	return policy == config.ApprovalAdminsAndPartner &&
		decider.Role == database.RolePartner &&
		decider.ID == ev.PartnerUserID
}

// reviewers: кому уходит заявка на оплату.
func reviewers(policy config.ApprovalPolicy, admins []int64, ev *database.Event) []int64 {
	out := make([]int64, 0, len(admins)+1)
	for _, id := range admins {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	if policy == config.ApprovalAdminsAndPartner && ev.PartnerUserID != 0 && !slices.Contains(out, ev.PartnerUserID) {
		out = append(out, ev.PartnerUserID)
	}
	return out
}
