package model

// ChatChanges is a set of logical chat fields touched by a merge. The replica
// uses it to decide whether the sorted chat list is stale and to suppress
// notifications for no-op updates.
type ChatChanges uint32

const (
	ChatChangedTitle ChatChanges = 1 << iota
	ChatChangedPicSmall
	ChatChangedOutgoingSeen
	ChatChangedIncomingSeen
	ChatChangedMyStatus
	ChatChangedMembersCount
	ChatChangedUnreadCount
	ChatChangedLastMessage
	ChatChangedOnline
	ChatChangedAction
)

// Has reports whether every bit of mask is set.
func (c ChatChanges) Has(mask ChatChanges) bool { return c&mask == mask }

// Empty reports whether no field changed.
func (c ChatChanges) Empty() bool { return c == 0 }

// MemberChanges is the member counterpart of ChatChanges.
type MemberChanges uint32

const (
	MemberChangedProfile MemberChanges = 1 << iota
	MemberChangedPic
	MemberChangedPicSmall
	MemberChangedPicMedium
	MemberChangedOnline
)

func (c MemberChanges) Has(mask MemberChanges) bool { return c&mask == mask }

func (c MemberChanges) Empty() bool { return c == 0 }
