package model

import (
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestMemberUpdateFromJSON(t *testing.T) {
	m := NewMember(gjson.Parse(`{
		"id": "C5",
		"first_name": "Ada",
		"last_name": "L",
		"pic_small": "http://x/a.png",
		"online": true
	}`))

	if m.ID != "C5" || m.FullName() != "Ada L" || !m.Online {
		t.Fatalf("unexpected member: %+v", m)
	}
	if m.Messenger() != MessengerChatCube {
		t.Fatal("messenger prefix misread")
	}

	ch := m.UpdateFromJSON(gjson.Parse(`{"first_name": "Ada", "online": false}`))
	if ch.Has(MemberChangedProfile) {
		t.Fatal("re-set of same name reported a profile change")
	}
	if !ch.Has(MemberChangedOnline) {
		t.Fatal("online flip not reported")
	}
}

func TestMemberActiveDefaultsTrueWhenAbsent(t *testing.T) {
	m := NewMember(gjson.Parse(`{"id": "T3", "first_name": "Tele"}`))
	if !m.Active {
		t.Fatal("absent active flag should read as active")
	}

	m.UpdateFromJSON(gjson.Parse(`{"active": false}`))
	if m.Active {
		t.Fatal("explicit active=false ignored")
	}
}

func TestMemberLastActionFallsBackToWasOnline(t *testing.T) {
	m := NewMember(gjson.Parse(`{"id": "T3", "was_online": 5000}`))
	if m.LastAction != 5000 {
		t.Fatalf("last action = %d, want fallback 5000", m.LastAction)
	}

	m.UpdateFromJSON(gjson.Parse(`{"last_action": 6000}`))
	if m.LastAction != 6000 {
		t.Fatalf("explicit last action lost: %d", m.LastAction)
	}
}

func TestMemberPresenceWindows(t *testing.T) {
	now := time.Now().Unix()

	m := &Member{Online: true}
	if !m.IsOnlineNow() || !m.IsActiveNow() {
		t.Fatal("online member must read online and active")
	}

	m = &Member{WasOnline: now - 10, LastAction: now - 10}
	if !m.IsOnlineNow() {
		t.Fatal("recent was_online should read online")
	}

	m = &Member{WasOnline: now - 3600, LastAction: now - 3600}
	if m.IsOnlineNow() || m.IsActiveNow() {
		t.Fatal("hour-old activity should read offline and inactive")
	}

	m = &Member{LastAction: now - 100}
	if !m.IsActiveNow() {
		t.Fatal("activity inside the window should read active")
	}
}

func TestMyMemberTelegramAccount(t *testing.T) {
	me := NewMyMember(gjson.Parse(`{
		"id": "C1",
		"first_name": "Me",
		"telegram_account": {"phone": "+15550100", "tg_user_id": 42}
	}`))

	if !me.HasTelegram() {
		t.Fatal("linked account not detected")
	}
	if me.Telegram.UserID != "T42" {
		t.Fatalf("telegram user id = %q, want T42", me.Telegram.UserID)
	}

	me.ClearTelegram()
	if me.HasTelegram() || me.Telegram.UserID != "" {
		t.Fatal("unlink left account state behind")
	}
}
