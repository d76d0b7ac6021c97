package model

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Messenger identity prefixes. The first byte of a chat or member id encodes
// which messenger the record originates from.
const (
	MessengerChatCube = 'C'
	MessengerTelegram = 'T'
)

// MemberInactiveTimeout is the last-action age in seconds beyond which a
// member is rendered as away.
const MemberInactiveTimeout = 240

// Member is a profile record in the replica's member table. Cached picture
// paths are filled in by the downloader as assets land on disk.
type Member struct {
	ID          string
	FirstName   string
	LastName    string
	UserID      string
	DisplayName string
	Email       string
	Phone       string
	City        string
	Website     string
	Country     string

	Pic            string
	PicSmall       string
	PicCached      string
	PicSmallCached string

	DateJoined int64
	WasOnline  int64
	LastAction int64
	Active     bool
	Online     bool

	// ChatID is the private chat this member fronts, if any. Kept as an id
	// rather than a pointer; resolve through the replica's chat map.
	ChatID string
}

// NewMember builds a member from an authoritative payload.
func NewMember(j gjson.Result) *Member {
	m := &Member{}
	m.UpdateFromJSON(j)
	return m
}

// Messenger returns the messenger prefix byte of the member's id.
func (m *Member) Messenger() byte {
	if m.ID == "" {
		return 0
	}
	return m.ID[0]
}

// FullName joins first and last name, falling back to the display name.
func (m *Member) FullName() string {
	switch {
	case m.FirstName != "" && m.LastName != "":
		return m.FirstName + " " + m.LastName
	case m.FirstName != "":
		return m.FirstName
	case m.LastName != "":
		return m.LastName
	}
	return m.DisplayName
}

// IsOnlineNow reports live presence, treating a fresh was_online as online.
func (m *Member) IsOnlineNow() bool {
	if m.Online {
		return true
	}
	return m.WasOnline > 0 && time.Now().Unix()-m.WasOnline < 60
}

// IsActiveNow reports activity within the inactivity window.
func (m *Member) IsActiveNow() bool {
	if m.Online {
		return true
	}
	return m.LastAction > 0 && time.Now().Unix()-m.LastAction < MemberInactiveTimeout
}

// UpdateFromJSON merges fields present in the payload and returns the set of
// logical fields that changed.
func (m *Member) UpdateFromJSON(j gjson.Result) MemberChanges {
	var changes MemberChanges

	if id := j.Get("id"); id.Exists() {
		m.ID = id.String()
	}
	if v := j.Get("country"); v.Exists() {
		m.Country = v.String()
	}
	if v := j.Get("date_joined"); v.Exists() {
		m.DateJoined = v.Int()
	}
	if v := j.Get("was_online"); v.Exists() {
		m.WasOnline = v.Int()
	}
	// Telegram payloads have no last_action; fall back to was_online.
	if v := j.Get("last_action"); v.Exists() {
		m.LastAction = v.Int()
	} else {
		m.LastAction = m.WasOnline
	}

	for _, f := range []struct {
		key string
		dst *string
	}{
		{"first_name", &m.FirstName},
		{"last_name", &m.LastName},
		{"userid", &m.UserID},
		{"displayname", &m.DisplayName},
		{"email", &m.Email},
		{"phone", &m.Phone},
		{"city", &m.City},
		{"website", &m.Website},
	} {
		if setString(j, f.key, f.dst) {
			changes |= MemberChangedProfile
		}
	}

	if setString(j, "pic", &m.Pic) {
		changes |= MemberChangedPic
	}
	if setString(j, "pic_small", &m.PicSmall) {
		changes |= MemberChangedPicSmall
	}
	if setBool(j, "online", &m.Online) {
		changes |= MemberChangedOnline
	}

	// "active" may be absent (Telegram members are always considered active).
	if v := j.Get("active"); v.Exists() {
		if act := v.Bool(); act != m.Active {
			m.Active = act
			changes |= MemberChangedOnline
		}
	} else {
		m.Active = true
	}
	return changes
}

// NotificationSettings mirrors the server-side per-user notification profile.
type NotificationSettings struct {
	Popup     bool
	Taskbar   bool
	Sound     bool
	UnreadAge int
}

// TelegramAccount is the secondary-messenger sub-record embedded in the
// logged-in member's profile.
type TelegramAccount struct {
	Phone     string
	FirstName string
	LastName  string
	Username  string
	Pic       string
	PicCached string
	TGUserID  int64
	// UserID is the member-table id of the telegram identity ("T" + TGUserID).
	UserID string
}

// MyMember is the logged-in user's own profile record.
type MyMember struct {
	Member

	PicMedium       string
	PicMediumCached string
	PushChannel     string

	Notifications NotificationSettings
	Telegram      TelegramAccount
}

// NewMyMember builds the logged-in profile from an authoritative payload.
func NewMyMember(j gjson.Result) *MyMember {
	m := &MyMember{Notifications: NotificationSettings{UnreadAge: 2}}
	m.UpdateFromJSON(j)
	return m
}

// HasTelegram reports whether a telegram account is linked.
func (m *MyMember) HasTelegram() bool { return m.Telegram.Phone != "" }

// ClearTelegram drops the linked telegram identity after an unregister.
func (m *MyMember) ClearTelegram() {
	m.Telegram.Phone = ""
	m.Telegram.TGUserID = 0
	m.Telegram.UserID = ""
}

// UpdateFromJSON merges the profile payload, including notification settings
// and the embedded telegram account.
func (m *MyMember) UpdateFromJSON(j gjson.Result) MemberChanges {
	changes := m.Member.UpdateFromJSON(j)

	if setString(j, "pic_medium", &m.PicMedium) {
		changes |= MemberChangedPicMedium
	}
	if v := j.Get("push_channel"); v.Exists() {
		m.PushChannel = v.String()
	}

	if ns := j.Get("notification_settings"); ns.IsObject() {
		setBool(ns, "popup", &m.Notifications.Popup)
		setBool(ns, "taskbar", &m.Notifications.Taskbar)
		setBool(ns, "sound", &m.Notifications.Sound)
		setInt(ns, "unread_age", &m.Notifications.UnreadAge)
	}

	if tg := j.Get("telegram_account"); tg.IsObject() {
		setString(tg, "phone", &m.Telegram.Phone)
		setString(tg, "first_name", &m.Telegram.FirstName)
		setString(tg, "last_name", &m.Telegram.LastName)
		setString(tg, "username", &m.Telegram.Username)
		setString(tg, "pic", &m.Telegram.Pic)
		setInt64(tg, "tg_user_id", &m.Telegram.TGUserID)
		m.Telegram.UserID = fmt.Sprintf("T%d", m.Telegram.TGUserID)
	}
	return changes
}
