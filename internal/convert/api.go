// Package convert maps domain values to the JSON wire messages and back.
package convert

import (
	"github.com/and161185/collabvault/internal/api"
	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	u "github.com/gofrs/uuid/v5"
)

// --- helpers ---

// ParseID parses a wire id. Malformed ids are validation errors naming field.
func ParseID(field, s string) (u.UUID, error) {
	id, err := u.FromString(s)
	if err != nil || id == u.Nil {
		return u.Nil, errs.Validationf("%s: invalid id %q", field, s)
	}
	return id, nil
}

// ParseIDs parses a list of wire ids.
func ParseIDs(field string, in []string) ([]u.UUID, error) {
	out := make([]u.UUID, 0, len(in))
	for i, s := range in {
		id, err := ParseID(field, s)
		if err != nil {
			return nil, errs.Validationf("%s[%d]: invalid id %q", field, i, s)
		}
		out = append(out, id)
	}
	return out, nil
}

func idStrings(ids []u.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func nullString(id u.NullUUID) string {
	if !id.Valid {
		return ""
	}
	return id.UUID.String()
}

// --- users & devices ---

// ToUser converts a domain user.
func ToUser(x model.User) api.User {
	return api.User{ID: x.ID.String(), SigningKeys: x.SigningKeys, CreatedAt: x.CreatedAt}
}

// ToDevice converts a domain device.
func ToDevice(d model.Device) api.Device {
	return api.Device{
		ID:                   d.ID.String(),
		UserID:               d.UserID.String(),
		IDKey:                d.IDKey,
		SigningKey:           d.SigningKey,
		Signatures:           d.Signatures,
		FallbackKey:          d.FallbackKey,
		FallbackKeySignature: d.FallbackKeySignature,
		CreatedAt:            d.CreatedAt,
	}
}

// ToDevices converts a slice of devices.
func ToDevices(in []model.Device) []api.Device {
	out := make([]api.Device, 0, len(in))
	for _, d := range in {
		out = append(out, ToDevice(d))
	}
	return out
}

func ToDeviceTombstone(t model.DeviceTombstone) api.DeviceTombstone {
	return api.DeviceTombstone{ID: t.ID.String(), IDKey: t.IDKey, SigningKey: t.SigningKey, UserID: t.UserID.String()}
}

func ToDeviceTombstones(in []model.DeviceTombstone) []api.DeviceTombstone {
	out := make([]api.DeviceTombstone, 0, len(in))
	for _, t := range in {
		out = append(out, ToDeviceTombstone(t))
	}
	return out
}

// FromOneTimeKeys converts uploaded keys.
func FromOneTimeKeys(in []api.OneTimeKey) []model.OneTimeKeyInput {
	out := make([]model.OneTimeKeyInput, 0, len(in))
	for _, k := range in {
		out = append(out, model.OneTimeKeyInput{Key: k.Key, Signature: k.Signature})
	}
	return out
}

// ToOneTimeKeys converts stored keys; claim state stays server side.
func ToOneTimeKeys(in []model.OneTimeKey) []api.OneTimeKey {
	out := make([]api.OneTimeKey, 0, len(in))
	for _, k := range in {
		out = append(out, api.OneTimeKey{Key: k.Key, Signature: k.Signature})
	}
	return out
}

// FromDeviceInput converts a device registration.
func FromDeviceInput(in api.DeviceInput) model.DeviceInput {
	return model.DeviceInput{
		IDKey:                in.IDKey,
		SigningKey:           in.SigningKey,
		Signature:            in.Signature,
		FallbackKey:          in.FallbackKey,
		FallbackKeySignature: in.FallbackKeySignature,
		OneTimeKeys:          FromOneTimeKeys(in.OneTimeKeys),
	}
}

func ToClaimedKeys(in []model.ClaimedKey) []api.ClaimedKey {
	out := make([]api.ClaimedKey, 0, len(in))
	for _, k := range in {
		out = append(out, api.ClaimedKey{DeviceIDKey: k.DeviceIDKey, Key: k.Key, Signature: k.Signature, Fallback: k.Fallback})
	}
	return out
}

// --- repositories ---

// FromGroupSessionMessages converts client messages; ids are assigned by the server.
func FromGroupSessionMessages(in []api.GroupSessionMessage) []model.GroupSessionMessageInput {
	out := make([]model.GroupSessionMessageInput, 0, len(in))
	for _, m := range in {
		out = append(out, model.GroupSessionMessageInput{TargetDeviceIDKey: m.TargetDeviceIDKey, Type: m.Type, Body: m.Body})
	}
	return out
}

// FromContentInput converts a content version.
func FromContentInput(in api.ContentInput) model.ContentInput {
	return model.ContentInput{
		EncryptedContent:       in.EncryptedContent,
		SchemaVersion:          in.SchemaVersion,
		SchemaVersionSignature: in.SchemaVersionSignature,
		GroupSessionMessages:   FromGroupSessionMessages(in.GroupSessionMessages),
	}
}

func toGroupSessionMessage(m model.GroupSessionMessage) api.GroupSessionMessage {
	return api.GroupSessionMessage{ID: m.ID.String(), TargetDeviceIDKey: m.TargetDeviceIDKey, Type: m.Type, Body: m.Body}
}

// ToRepository converts a repository without content.
func ToRepository(r model.Repository, caller u.UUID) api.Repository {
	return api.Repository{
		ID:                           r.ID.String(),
		CreatorID:                    r.CreatorID.String(),
		Collaborators:                idStrings(r.Collaborators),
		LastContentUpdateIntegrityID: r.LastContentUpdateIntegrityID,
		IsCreator:                    r.CreatorID == caller,
	}
}

// ToRepositoryView converts a repository as seen by one device.
func ToRepositoryView(v model.RepositoryView) api.Repository {
	out := ToRepository(v.Repository, u.Nil)
	out.IsCreator = v.IsCreator
	for _, c := range v.Content {
		out.Content = append(out.Content, api.Content{
			ID:                     c.Content.ID.String(),
			EncryptedContent:       c.Content.EncryptedContent,
			SchemaVersion:          c.Content.SchemaVersion,
			SchemaVersionSignature: c.Content.SchemaVersionSignature,
			CreatedAt:              c.Content.CreatedAt,
			AuthorUserID:           c.AuthorUserID.String(),
			AuthorDevice:           ToDevice(c.AuthorDevice),
			GroupSessionMessage:    toGroupSessionMessage(c.GroupSessionMessage),
		})
	}
	return out
}

// ToContentCommit converts the result of a content write.
func ToContentCommit(c model.ContentCommit, caller u.UUID) api.ContentCommitResponse {
	return api.ContentCommitResponse{
		Repository:             ToRepository(c.Repository, caller),
		ContentID:              c.Content.ID.String(),
		GroupSessionMessageIDs: idStrings(c.GroupSessionMessageIDs),
	}
}

// ToRepositoryListing converts AllRepositories.
func ToRepositoryListing(l model.RepositoryListing) api.AllRepositoriesResponse {
	out := api.AllRepositoriesResponse{
		Repositories: make([]api.Repository, 0, len(l.Repositories)),
		Tombstones:   make([]api.RepositoryTombstone, 0, len(l.Tombstones)),
	}
	for _, v := range l.Repositories {
		out.Repositories = append(out.Repositories, ToRepositoryView(v))
	}
	for _, t := range l.Tombstones {
		out.Tombstones = append(out.Tombstones, api.RepositoryTombstone{ID: t.ID.String()})
	}
	return out
}

// FromLastTokens parses the client's integrity token map.
func FromLastTokens(in map[string]string) (map[u.UUID]string, error) {
	out := make(map[u.UUID]string, len(in))
	for k, v := range in {
		id, err := ParseID("lastContentUpdateIntegrityIds", k)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

func ToRepositoryDevices(d model.RepositoryDevices) api.RepositoryDevicesResponse {
	return api.RepositoryDevicesResponse{
		Devices:                                  ToDevices(d.Devices),
		GroupSessionMessageIDsMatchTargetDevices: d.GroupSessionMessageIDsMatchTargetDevices,
		AllMessagesFound:                         d.AllMessagesFound,
	}
}

// FromRepositoryGroups converts AddCollaboratorToRepositories entries.
func FromRepositoryGroups(in []api.RepositoryGroupMessages) ([]model.CollaboratorMessages, error) {
	out := make([]model.CollaboratorMessages, 0, len(in))
	for i, g := range in {
		id, err := ParseID("repositoryGroups", g.RepositoryID)
		if err != nil {
			return nil, errs.Validationf("repositoryGroups[%d]: invalid repository id %q", i, g.RepositoryID)
		}
		out = append(out, model.CollaboratorMessages{RepositoryID: id, GroupSessionMessages: FromGroupSessionMessages(g.GroupSessionMessages)})
	}
	return out, nil
}

func ToCollaboratorResults(in []model.CollaboratorResult) []api.CollaboratorResult {
	out := make([]api.CollaboratorResult, 0, len(in))
	for _, r := range in {
		out = append(out, api.CollaboratorResult{RepositoryID: r.RepositoryID.String(), GroupSessionMessageIDs: idStrings(r.GroupSessionMessageIDs)})
	}
	return out
}

// --- contacts ---

func ToContact(c model.Contact) api.Contact {
	return api.Contact{
		ID:                c.ID.String(),
		UserID:            c.UserID.String(),
		ContactUserID:     c.ContactUserID.String(),
		SigningKey:        c.SigningKey,
		ContactSigningKey: c.ContactSigningKey,
		Signatures:        c.Signatures,
		CreatedAt:         c.CreatedAt,
	}
}

func ToContacts(in []model.Contact) []api.Contact {
	out := make([]api.Contact, 0, len(in))
	for _, c := range in {
		out = append(out, ToContact(c))
	}
	return out
}

func ToInvitation(inv model.ContactInvitation) api.ContactInvitation {
	return api.ContactInvitation{
		ID:                 inv.ID.String(),
		UserID:             inv.UserID.String(),
		SigningKey:         inv.SigningKey,
		ServerSecret:       inv.ServerSecret,
		Status:             string(inv.Status),
		ContactInfoMessage: inv.ContactInfoMessage,
		AcceptedByUserID:   nullString(inv.AcceptedByUserID),
		CreatedAt:          inv.CreatedAt,
	}
}

func ToInvitations(in []model.ContactInvitation) []api.ContactInvitation {
	out := make([]api.ContactInvitation, 0, len(in))
	for _, inv := range in {
		out = append(out, ToInvitation(inv))
	}
	return out
}

// FromInvitationLookup parses the out-of-band invitation triple.
func FromInvitationLookup(in api.InvitationLookup) (model.InvitationLookup, error) {
	id, err := ParseID("userId", in.UserID)
	if err != nil {
		return model.InvitationLookup{}, err
	}
	return model.InvitationLookup{UserID: id, SigningKey: in.SigningKey, ServerSecret: in.ServerSecret}, nil
}

// --- private info ---

func ToPrivateInfo(in []model.PrivateInfoView) []api.PrivateInfo {
	out := make([]api.PrivateInfo, 0, len(in))
	for _, v := range in {
		m := v.GroupSessionMessage
		msg := api.GroupSessionMessage{ID: m.ID.String(), TargetDeviceIDKey: m.TargetDeviceIDKey, Type: m.Type, Body: m.Body}
		out = append(out, api.PrivateInfo{
			ID:                  v.Content.ID.String(),
			EncryptedContent:    v.Content.EncryptedContent,
			CreatedAt:           v.Content.CreatedAt,
			AuthorDevice:        ToDevice(v.AuthorDevice),
			GroupSessionMessage: msg,
		})
	}
	return out
}

// --- licenses ---

func ToLicense(l model.License) api.License {
	return api.License{ID: l.ID.String(), Token: l.Token, BillingAccountID: l.BillingAccountID.String(), UserID: nullString(l.UserID)}
}

func ToLicenseTokens(in []model.LicenseToken) []api.LicenseToken {
	out := make([]api.LicenseToken, 0, len(in))
	for _, t := range in {
		out = append(out, api.LicenseToken{Token: t.Token, IsActive: t.IsActive, SubscriptionPlan: t.SubscriptionPlan})
	}
	return out
}

// ToBillingAccount converts an account with its licenses.
func ToBillingAccount(a model.BillingAccount, ls []model.License) api.BillingAccount {
	out := api.BillingAccount{
		ID:                 a.ID.String(),
		Email:              a.Email,
		SubscriptionPlan:   a.SubscriptionPlan,
		SubscriptionStatus: string(a.SubscriptionStatus),
		Licenses:           make([]api.License, 0, len(ls)),
	}
	for _, l := range ls {
		out.Licenses = append(out.Licenses, ToLicense(l))
	}
	return out
}
