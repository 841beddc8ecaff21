package model

import "time"

// User is the persistent profile of one Telegram identity. Identities are
// kept as strings end to end so equality never breaks across the numeric
// types of the host platform and the store.
type User struct {
	TelegramID       string
	DisplayName      string
	XP               int
	CurrentStreak    int
	MaxStreak        int
	LastCheckin      *time.Time
	ReferralCode     *string
	RegistrationDate time.Time
}

// ProfilePatch is a partial update of a User. Nil fields are left as-is.
type ProfilePatch struct {
	DisplayName   *string
	CurrentStreak *int
	MaxStreak     *int
	LastCheckin   *time.Time
	ReferralCode  *string
}

// ApplyTo merges the patch into a copy of u and returns the copy.
func (p ProfilePatch) ApplyTo(u *User) *User {
	merged := *u
	if p.DisplayName != nil {
		merged.DisplayName = *p.DisplayName
	}
	if p.CurrentStreak != nil {
		merged.CurrentStreak = *p.CurrentStreak
	}
	if p.MaxStreak != nil {
		merged.MaxStreak = *p.MaxStreak
	}
	if p.LastCheckin != nil {
		merged.LastCheckin = p.LastCheckin
	}
	if p.ReferralCode != nil {
		merged.ReferralCode = p.ReferralCode
	}
	return &merged
}

// IsEmpty reports whether the patch carries no fields at all.
func (p ProfilePatch) IsEmpty() bool {
	return p.DisplayName == nil &&
		p.CurrentStreak == nil &&
		p.MaxStreak == nil &&
		p.LastCheckin == nil &&
		p.ReferralCode == nil
}

// UserReferral is one invited user as shown on the inviter's referral list.
type UserReferral struct {
	TelegramID  string
	DisplayName string
	XP          int
	InvitedAt   time.Time
}
