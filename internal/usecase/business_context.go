package usecase

import "github.com/get-hunter/hero365-app-sub007/internal/domain"

// ResolveBusinessContext picks the business a request operates under: the
// first active membership in the snapshot. Profile preferences influence
// which business a session is issued for, not how an individual request
// resolves; per-request resolution is a pure function of the snapshot. The
// returned membership carries the canonical business id from the store, so
// downstream comparisons never depend on the caller's casing. Returns false
// when the caller belongs to no business.
func ResolveBusinessContext(memberships domain.MembershipSnapshot) (domain.BusinessMembership, bool) {
	return memberships.FirstActive()
}
