package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/and161185/collabvault/internal/limiter"
	"github.com/and161185/collabvault/internal/mailer"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/notify"
	"github.com/and161185/collabvault/internal/repository/memory"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type sentEvent struct {
	users []uuid.UUID
	ev    notify.Event
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
}

var _ notify.Notifier = (*recordingNotifier)(nil)

func (r *recordingNotifier) Notify(_ context.Context, users []uuid.UUID, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEvent{users: append([]uuid.UUID{}, users...), ev: ev})
}

func (r *recordingNotifier) last() sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

type recordingMailer struct {
	mu   sync.Mutex
	sent map[string]string
}

var _ mailer.Mailer = (*recordingMailer)(nil)

func (m *recordingMailer) Send(_ context.Context, address, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = map[string]string{}
	}
	m.sent[address] = token
	return nil
}

type env struct {
	store    *memory.Store
	lim      *limiter.Memory
	notifier *recordingNotifier
	mail     *recordingMailer

	devices  *DeviceServiceImpl
	keys     *KeyServiceImpl
	repos    *RepositoryServiceImpl
	contacts *ContactServiceImpl
	info     *PrivateInfoServiceImpl
	licenses *LicenseServiceImpl
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zaptest.NewLogger(t)
	st := memory.New()
	e := &env{
		store:    st,
		lim:      limiter.NewMemory(15*time.Minute, 3, 15*time.Minute),
		notifier: &recordingNotifier{},
		mail:     &recordingMailer{},
	}
	e.devices = NewDeviceService(st.Users(), st.Devices(), e.lim, log)
	e.keys = NewKeyService(st.Keys(), st.Devices(), 4, log)
	e.repos = NewRepositoryService(st.Repositories(), st.Devices(), st.Contacts(), e.notifier, log)
	e.contacts = NewContactService(st.Contacts(), st.Devices(), e.lim)
	e.info = NewPrivateInfoService(st.PrivateInfo(), st.Devices(), log)
	e.licenses = NewLicenseService(st.Licenses(), st.Users(), e.mail, []byte("test-signing-key"), e.lim)
	return e
}

func deviceInput(name string, keys ...string) model.DeviceInput {
	in := model.DeviceInput{
		IDKey:                name + "-idk",
		SigningKey:           name + "-dsk",
		Signature:            name + "-sig",
		FallbackKey:          name + "-fallback",
		FallbackKeySignature: name + "-fallback-sig",
	}
	for _, k := range keys {
		in.OneTimeKeys = append(in.OneTimeKeys, model.OneTimeKeyInput{Key: k, Signature: k + "-sig"})
	}
	return in
}

// newUser registers a user whose first device is named after the user.
func (e *env) newUser(t *testing.T, name string, keys ...string) *model.Session {
	t.Helper()
	u, d, err := e.devices.CreateUserWithDevice(context.Background(), name+"-usk", deviceInput(name, keys...))
	require.NoError(t, err)
	return &model.Session{User: *u, Device: *d}
}

func (e *env) addDevice(t *testing.T, s *model.Session, name string, keys ...string) *model.Session {
	t.Helper()
	d, err := e.devices.AddDevice(context.Background(), s, deviceInput(name, keys...), "verify", name+"-secret")
	require.NoError(t, err)
	return &model.Session{User: s.User, Device: *d}
}

func envelopeOf(s *model.Session) string {
	return fmt.Sprintf(`{"senderIdKey":%q,"ciphertext":"opaque"}`, s.Device.IDKey)
}

func contentFor(s *model.Session, targets ...*model.Session) model.ContentInput {
	in := model.ContentInput{EncryptedContent: envelopeOf(s)}
	for _, t := range targets {
		in.GroupSessionMessages = append(in.GroupSessionMessages, model.GroupSessionMessageInput{
			TargetDeviceIDKey: t.Device.IDKey,
			Type:              0,
			Body:              "key-for-" + t.Device.IDKey,
		})
	}
	return in
}

// befriend runs the whole invitation handshake and returns the inviter's contact of invitee.
func (e *env) befriend(t *testing.T, inviter, invitee *model.Session) model.Contact {
	t.Helper()
	ctx := context.Background()
	inv, err := e.contacts.CreateInvitation(ctx, inviter, "secret-"+invitee.User.ID.String())
	require.NoError(t, err)
	_, err = e.contacts.Accept(ctx, invitee, model.AcceptInvitationInput{
		InvitationLookup:   model.InvitationLookup{UserID: inviter.User.ID, SigningKey: inv.SigningKey, ServerSecret: inv.ServerSecret},
		Signature:          "invitee-sig",
		ContactInfoMessage: "hello",
	}, "127.0.0.1")
	require.NoError(t, err)
	_, err = e.contacts.Complete(ctx, inviter, model.CompleteInvitationInput{
		InvitationID:   inv.ID,
		UserID:         invitee.User.ID,
		UserSigningKey: invitee.User.ActiveSigningKey(),
		Signature:      "inviter-sig",
	})
	require.NoError(t, err)

	cs, err := e.contacts.Contacts(ctx, inviter)
	require.NoError(t, err)
	for _, c := range cs {
		if c.ContactUserID == invitee.User.ID {
			return c
		}
	}
	t.Fatalf("contact of %s not found", invitee.User.ID)
	return model.Contact{}
}
