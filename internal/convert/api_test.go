package convert

import (
	"errors"
	"testing"
	"time"

	"github.com/and161185/collabvault/internal/api"
	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	u "github.com/gofrs/uuid/v5"
)

func mustUUID(t *testing.T, s string) u.UUID {
	t.Helper()
	id, err := u.FromString(s)
	if err != nil {
		t.Fatalf("bad uuid %q: %v", s, err)
	}
	return id
}

func TestParseID(t *testing.T) {
	t.Parallel()

	id, err := ParseID("id", "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11")
	if err != nil || id.String() != "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11" {
		t.Fatalf("ParseID: id=%v err=%v", id, err)
	}
	for _, bad := range []string{"", "nope", u.Nil.String()} {
		if _, err := ParseID("id", bad); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%q: want validation error, got %v", bad, err)
		}
	}
	if _, err := ParseIDs("ids", []string{"6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11", "x"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error for second id, got %v", err)
	}
}

func TestFromDeviceInput(t *testing.T) {
	t.Parallel()

	got := FromDeviceInput(api.DeviceInput{
		IDKey:       "idk",
		SigningKey:  "sk",
		Signature:   "sig",
		FallbackKey: "fb",
		OneTimeKeys: []api.OneTimeKey{{Key: "k1", Signature: "s1"}},
	})
	if got.IDKey != "idk" || got.SigningKey != "sk" || got.FallbackKey != "fb" {
		t.Fatalf("device fields mismatch: %+v", got)
	}
	if len(got.OneTimeKeys) != 1 || got.OneTimeKeys[0] != (model.OneTimeKeyInput{Key: "k1", Signature: "s1"}) {
		t.Fatalf("keys mismatch: %+v", got.OneTimeKeys)
	}
}

func TestToRepositoryView(t *testing.T) {
	t.Parallel()

	creator := mustUUID(t, "11111111-1111-4111-8111-111111111111")
	other := mustUUID(t, "22222222-2222-4222-8222-222222222222")
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	v := model.RepositoryView{
		Repository: model.Repository{
			ID:                           mustUUID(t, "33333333-3333-4333-8333-333333333333"),
			CreatorID:                    creator,
			Collaborators:                []u.UUID{creator, other},
			LastContentUpdateIntegrityID: "tok",
		},
		IsCreator: true,
		Content: []model.ContentView{{
			Content:             model.Content{ID: mustUUID(t, "44444444-4444-4444-8444-444444444444"), EncryptedContent: "{}", CreatedAt: now},
			AuthorUserID:        creator,
			AuthorDevice:        model.Device{IDKey: "idk"},
			GroupSessionMessage: model.GroupSessionMessage{TargetDeviceIDKey: "target", Body: "b"},
		}},
	}

	got := ToRepositoryView(v)
	if !got.IsCreator || got.LastContentUpdateIntegrityID != "tok" {
		t.Fatalf("repository mismatch: %+v", got)
	}
	if len(got.Collaborators) != 2 || got.Collaborators[1] != other.String() {
		t.Fatalf("collaborators mismatch: %v", got.Collaborators)
	}
	if len(got.Content) != 1 {
		t.Fatalf("want one content, got %d", len(got.Content))
	}
	c := got.Content[0]
	if c.AuthorUserID != creator.String() || c.AuthorDevice.IDKey != "idk" || c.GroupSessionMessage.TargetDeviceIDKey != "target" || !c.CreatedAt.Equal(now) {
		t.Fatalf("content mismatch: %+v", c)
	}

	bare := ToRepository(v.Repository, other)
	if bare.IsCreator || bare.Content != nil {
		t.Fatalf("bare repository mismatch: %+v", bare)
	}
}

func TestFromLastTokens(t *testing.T) {
	t.Parallel()

	got, err := FromLastTokens(map[string]string{"33333333-3333-4333-8333-333333333333": "tok"})
	if err != nil {
		t.Fatalf("FromLastTokens: %v", err)
	}
	if got[mustUUID(t, "33333333-3333-4333-8333-333333333333")] != "tok" {
		t.Fatalf("token mismatch: %v", got)
	}
	if _, err := FromLastTokens(map[string]string{"bad": "tok"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestFromRepositoryGroups(t *testing.T) {
	t.Parallel()

	got, err := FromRepositoryGroups([]api.RepositoryGroupMessages{{
		RepositoryID:         "33333333-3333-4333-8333-333333333333",
		GroupSessionMessages: []api.GroupSessionMessage{{ID: "ignored", TargetDeviceIDKey: "t", Type: 1, Body: "b"}},
	}})
	if err != nil {
		t.Fatalf("FromRepositoryGroups: %v", err)
	}
	want := model.GroupSessionMessageInput{TargetDeviceIDKey: "t", Type: 1, Body: "b"}
	if len(got) != 1 || len(got[0].GroupSessionMessages) != 1 || got[0].GroupSessionMessages[0] != want {
		t.Fatalf("entries mismatch: %+v", got)
	}

	if _, err := FromRepositoryGroups([]api.RepositoryGroupMessages{{RepositoryID: "x"}}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestToInvitationAndLicense(t *testing.T) {
	t.Parallel()

	by := mustUUID(t, "22222222-2222-4222-8222-222222222222")
	msg := "hello"
	inv := ToInvitation(model.ContactInvitation{
		Status:             model.InvitationAccepted,
		ContactInfoMessage: &msg,
		AcceptedByUserID:   u.NullUUID{UUID: by, Valid: true},
	})
	if inv.Status != "ACCEPTED" || inv.AcceptedByUserID != by.String() || *inv.ContactInfoMessage != "hello" {
		t.Fatalf("invitation mismatch: %+v", inv)
	}
	if ToInvitation(model.ContactInvitation{}).AcceptedByUserID != "" {
		t.Fatalf("unaccepted invitation must have no acceptor")
	}

	l := ToLicense(model.License{Token: "t"})
	if l.UserID != "" || l.Token != "t" {
		t.Fatalf("license mismatch: %+v", l)
	}

	acc := ToBillingAccount(model.BillingAccount{SubscriptionStatus: model.SubscriptionActive}, nil)
	if acc.SubscriptionStatus != "ACTIVE" || acc.Licenses == nil {
		t.Fatalf("account mismatch: %+v", acc)
	}
}
