package model

import "time"

// ReferralEdge records that ReferredID joined via ReferrerID's code.
// At most one edge may ever exist per ReferredID.
type ReferralEdge struct {
	ReferrerID string
	ReferredID string
	CreatedAt  time.Time
}

// ReferralOutcome reports a successful code redemption.
type ReferralOutcome struct {
	ReferrerID   string
	ReferredID   string
	ReferrerXP   int
	ReferredXP   int
	BonusAwarded int
}
