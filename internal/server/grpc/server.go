// Package grpcserver exposes the collabvault sync API over gRPC.
package grpcserver

import (
	"context"

	"github.com/and161185/collabvault/internal/api"
	"github.com/and161185/collabvault/internal/auth"
	"github.com/and161185/collabvault/internal/convert"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/service"
)

// Authenticator resolves the caller of a request from its auth.RequestContext.
type Authenticator interface {
	Authenticate(ctx context.Context) (*model.Session, error)
}

// Services groups the application services served by the API.
type Services struct {
	Devices     service.DeviceService
	Keys        service.KeyService
	Repos       service.RepositoryService
	Contacts    service.ContactService
	PrivateInfo service.PrivateInfoService
	Licenses    service.LicenseService
}

// Server wires services into gRPC handlers.
type Server struct {
	svc  Services
	auth Authenticator
}

// New constructs a gRPC server with injected services.
func New(svc Services, a Authenticator) *Server {
	return &Server{svc: svc, auth: a}
}

func (s *Server) session(ctx context.Context) (*model.Session, error) {
	return s.auth.Authenticate(ctx)
}

// --- devices ---

// CreateUser registers a user with its first device. Unauthenticated.
func (s *Server) CreateUser(ctx context.Context, req *api.CreateUserRequest) (*api.CreateUserResponse, error) {
	u, d, err := s.svc.Devices.CreateUserWithDevice(ctx, req.UserSigningKey, convert.FromDeviceInput(req.Device))
	if err != nil {
		return nil, err
	}
	return &api.CreateUserResponse{User: convert.ToUser(*u), Device: convert.ToDevice(*d)}, nil
}

func (s *Server) AddDevice(ctx context.Context, req *api.AddDeviceRequest) (*api.DeviceResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.svc.Devices.AddDevice(ctx, sess, convert.FromDeviceInput(req.Device), req.VerificationMessage, req.ServerSecret)
	if err != nil {
		return nil, err
	}
	return &api.DeviceResponse{Device: convert.ToDevice(*d)}, nil
}

// FetchAddDeviceVerification is called by the new device before it has an account. Unauthenticated.
func (s *Server) FetchAddDeviceVerification(ctx context.Context, req *api.FetchAddDeviceVerificationRequest) (*api.FetchAddDeviceVerificationResponse, error) {
	v, err := s.svc.Devices.FetchAddDeviceVerification(ctx, req.DeviceIDKey, req.ServerSecret, auth.FromContext(ctx).Peer())
	if err != nil {
		return nil, err
	}
	return &api.FetchAddDeviceVerificationResponse{
		ID:                  v.ID.String(),
		DeviceIDKey:         v.DeviceIDKey,
		VerificationMessage: v.VerificationMessage,
	}, nil
}

func (s *Server) DeleteDevice(ctx context.Context, req *api.DeleteDeviceRequest) (*api.DeleteDeviceResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.svc.Devices.DeleteDevice(ctx, sess, req.DeviceIDKey)
	if err != nil {
		return nil, err
	}
	return &api.DeleteDeviceResponse{Tombstone: convert.ToDeviceTombstone(*t)}, nil
}

func (s *Server) DeleteUser(ctx context.Context, _ *api.Empty) (*api.Success, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Devices.DeleteUser(ctx, sess); err != nil {
		return nil, err
	}
	return &api.Success{Success: true}, nil
}

func (s *Server) Devices(ctx context.Context, _ *api.Empty) (*api.DevicesResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	ds, err := s.svc.Devices.Devices(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &api.DevicesResponse{Devices: convert.ToDevices(ds)}, nil
}

func (s *Server) DeviceTombstones(ctx context.Context, _ *api.Empty) (*api.DeviceTombstonesResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	ts, err := s.svc.Devices.DeviceTombstones(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &api.DeviceTombstonesResponse{Tombstones: convert.ToDeviceTombstones(ts)}, nil
}

// --- one-time keys ---

func (s *Server) SendOneTimeKeys(ctx context.Context, req *api.SendOneTimeKeysRequest) (*api.Success, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Keys.Replenish(ctx, sess, convert.FromOneTimeKeys(req.OneTimeKeys)); err != nil {
		return nil, err
	}
	return &api.Success{Success: true}, nil
}

func (s *Server) ClaimOneTimeKeysForMultipleDevices(ctx context.Context, req *api.ClaimOneTimeKeysRequest) (*api.ClaimOneTimeKeysResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := s.svc.Keys.ClaimForDevices(ctx, sess, req.DeviceIDKeys)
	if err != nil {
		return nil, err
	}
	return &api.ClaimOneTimeKeysResponse{OneTimeKeys: convert.ToClaimedKeys(keys)}, nil
}

func (s *Server) RemoveOneTimeKey(ctx context.Context, req *api.RemoveOneTimeKeyRequest) (*api.Success, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	removed, err := s.svc.Keys.RemoveKey(ctx, sess, req.Key)
	if err != nil {
		return nil, err
	}
	return &api.Success{Success: removed}, nil
}

func (s *Server) UnclaimedOneTimeKeysCount(ctx context.Context, req *api.UnclaimedOneTimeKeysCountRequest) (*api.UnclaimedOneTimeKeysCountResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.svc.Keys.CountUnclaimed(ctx, sess, req.DeviceIDKey)
	if err != nil {
		return nil, err
	}
	return &api.UnclaimedOneTimeKeysCountResponse{Count: n}, nil
}

func (s *Server) OneTimeKeys(ctx context.Context, _ *api.Empty) (*api.OneTimeKeysResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := s.svc.Keys.OneTimeKeys(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &api.OneTimeKeysResponse{OneTimeKeys: convert.ToOneTimeKeys(keys)}, nil
}

func (s *Server) UpdateFallbackKey(ctx context.Context, req *api.UpdateFallbackKeyRequest) (*api.Success, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Keys.UpdateFallbackKey(ctx, sess, req.FallbackKey, req.FallbackKeySignature); err != nil {
		return nil, err
	}
	return &api.Success{Success: true}, nil
}

// --- repositories ---

func (s *Server) CreateRepository(ctx context.Context, req *api.CreateRepositoryRequest) (*api.ContentCommitResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.svc.Repos.Create(ctx, sess, convert.FromContentInput(req.Content))
	if err != nil {
		return nil, err
	}
	resp := convert.ToContentCommit(*c, sess.User.ID)
	return &resp, nil
}

func (s *Server) UpdateRepositoryContent(ctx context.Context, req *api.UpdateRepositoryContentRequest) (*api.ContentCommitResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	repoID, err := convert.ParseID("repositoryId", req.RepositoryID)
	if err != nil {
		return nil, err
	}
	ids, err := convert.ParseIDs("groupSessionMessageIds", req.GroupSessionMessageIDs)
	if err != nil {
		return nil, err
	}
	c, err := s.svc.Repos.UpdateContent(ctx, sess, repoID, convert.FromContentInput(req.Content), ids)
	if err != nil {
		return nil, err
	}
	resp := convert.ToContentCommit(*c, sess.User.ID)
	return &resp, nil
}

func (s *Server) UpdateRepositoryContentAndGroupSession(ctx context.Context, req *api.UpdateRepositoryContentAndGroupSessionRequest) (*api.ContentCommitResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	repoID, err := convert.ParseID("repositoryId", req.RepositoryID)
	if err != nil {
		return nil, err
	}
	c, err := s.svc.Repos.UpdateContentAndGroupSession(ctx, sess, repoID, convert.FromContentInput(req.Content))
	if err != nil {
		return nil, err
	}
	resp := convert.ToContentCommit(*c, sess.User.ID)
	return &resp, nil
}

func (s *Server) Repository(ctx context.Context, req *api.RepositoryRequest) (*api.RepositoryResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	v, err := s.svc.Repos.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	return &api.RepositoryResponse{Repository: convert.ToRepositoryView(*v)}, nil
}

func (s *Server) AllRepositories(ctx context.Context, req *api.AllRepositoriesRequest) (*api.AllRepositoriesResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := convert.FromLastTokens(req.LastContentUpdateIntegrityIDs)
	if err != nil {
		return nil, err
	}
	l, err := s.svc.Repos.List(ctx, sess, tokens)
	if err != nil {
		return nil, err
	}
	resp := convert.ToRepositoryListing(*l)
	return &resp, nil
}

func (s *Server) RepositoryDevices(ctx context.Context, req *api.RepositoryDevicesRequest) (*api.RepositoryDevicesResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	repoID, err := convert.ParseID("repositoryId", req.RepositoryID)
	if err != nil {
		return nil, err
	}
	ids, err := convert.ParseIDs("groupSessionMessageIds", req.GroupSessionMessageIDs)
	if err != nil {
		return nil, err
	}
	d, err := s.svc.Repos.RepositoryDevices(ctx, sess, repoID, ids)
	if err != nil {
		return nil, err
	}
	resp := convert.ToRepositoryDevices(*d)
	return &resp, nil
}

func (s *Server) AddCollaboratorToRepositories(ctx context.Context, req *api.AddCollaboratorRequest) (*api.AddCollaboratorResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	contactID, err := convert.ParseID("contactId", req.ContactID)
	if err != nil {
		return nil, err
	}
	entries, err := convert.FromRepositoryGroups(req.RepositoryGroups)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.Repos.AddCollaborator(ctx, sess, contactID, entries)
	if err != nil {
		return nil, err
	}
	return &api.AddCollaboratorResponse{Results: convert.ToCollaboratorResults(res)}, nil
}

func (s *Server) RemoveCollaboratorFromRepository(ctx context.Context, req *api.RemoveCollaboratorRequest) (*api.RepositoryResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	repoID, err := convert.ParseID("repositoryId", req.RepositoryID)
	if err != nil {
		return nil, err
	}
	userID, err := convert.ParseID("collaboratorId", req.CollaboratorID)
	if err != nil {
		return nil, err
	}
	r, err := s.svc.Repos.RemoveCollaborator(ctx, sess, repoID, userID)
	if err != nil {
		return nil, err
	}
	return &api.RepositoryResponse{Repository: convert.ToRepository(*r, sess.User.ID)}, nil
}

func (s *Server) DeleteRepository(ctx context.Context, req *api.RepositoryRequest) (*api.Success, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Repos.Delete(ctx, sess, id); err != nil {
		return nil, err
	}
	return &api.Success{Success: true}, nil
}

// --- contacts ---

func (s *Server) CreateContactInvitation(ctx context.Context, req *api.CreateContactInvitationRequest) (*api.ContactInvitationResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	inv, err := s.svc.Contacts.CreateInvitation(ctx, sess, req.ServerSecret)
	if err != nil {
		return nil, err
	}
	return &api.ContactInvitationResponse{Invitation: convert.ToInvitation(*inv)}, nil
}

func (s *Server) ContactInvitations(ctx context.Context, _ *api.Empty) (*api.ContactInvitationsResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	invs, err := s.svc.Contacts.Invitations(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &api.ContactInvitationsResponse{Invitations: convert.ToInvitations(invs)}, nil
}

// DevicesForContactInvitation lets an invitee see the inviter's devices. Unauthenticated.
func (s *Server) DevicesForContactInvitation(ctx context.Context, req *api.InvitationLookup) (*api.DevicesResponse, error) {
	l, err := convert.FromInvitationLookup(*req)
	if err != nil {
		return nil, err
	}
	ds, err := s.svc.Contacts.DevicesForInvitation(ctx, l, auth.FromContext(ctx).Peer())
	if err != nil {
		return nil, err
	}
	return &api.DevicesResponse{Devices: convert.ToDevices(ds)}, nil
}

func (s *Server) AcceptContactInvitation(ctx context.Context, req *api.AcceptContactInvitationRequest) (*api.ContactInvitationResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	l, err := convert.FromInvitationLookup(req.InvitationLookup)
	if err != nil {
		return nil, err
	}
	inv, err := s.svc.Contacts.Accept(ctx, sess, model.AcceptInvitationInput{
		InvitationLookup:   l,
		Signature:          req.Signature,
		ContactInfoMessage: req.ContactInfoMessage,
	}, auth.FromContext(ctx).Peer())
	if err != nil {
		return nil, err
	}
	return &api.ContactInvitationResponse{Invitation: convert.ToInvitation(*inv)}, nil
}

func (s *Server) CompleteContactInvitation(ctx context.Context, req *api.CompleteContactInvitationRequest) (*api.ContactInvitationResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	invID, err := convert.ParseID("contactInvitationId", req.ContactInvitationID)
	if err != nil {
		return nil, err
	}
	userID, err := convert.ParseID("userId", req.UserID)
	if err != nil {
		return nil, err
	}
	inv, err := s.svc.Contacts.Complete(ctx, sess, model.CompleteInvitationInput{
		InvitationID:   invID,
		UserID:         userID,
		UserSigningKey: req.UserSigningKey,
		Signature:      req.Signature,
	})
	if err != nil {
		return nil, err
	}
	return &api.ContactInvitationResponse{Invitation: convert.ToInvitation(*inv)}, nil
}

func (s *Server) DeleteContactInvitation(ctx context.Context, req *api.IDRequest) (*api.Success, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Contacts.DeleteInvitation(ctx, sess, id); err != nil {
		return nil, err
	}
	return &api.Success{Success: true}, nil
}

func (s *Server) Contacts(ctx context.Context, _ *api.Empty) (*api.ContactsResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := s.svc.Contacts.Contacts(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &api.ContactsResponse{Contacts: convert.ToContacts(cs)}, nil
}

func (s *Server) DevicesForContact(ctx context.Context, req *api.IDRequest) (*api.DevicesResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	ds, err := s.svc.Contacts.DevicesForContact(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	return &api.DevicesResponse{Devices: convert.ToDevices(ds)}, nil
}

func (s *Server) DeleteContact(ctx context.Context, req *api.IDRequest) (*api.Success, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Contacts.DeleteContact(ctx, sess, id); err != nil {
		return nil, err
	}
	return &api.Success{Success: true}, nil
}

// --- private info ---

func (s *Server) UpdatePrivateInfo(ctx context.Context, req *api.UpdatePrivateInfoRequest) (*api.UpdatePrivateInfoResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.svc.PrivateInfo.Update(ctx, sess, req.EncryptedContent, convert.FromGroupSessionMessages(req.PrivateInfoGroupSessionMessages))
	if err != nil {
		return nil, err
	}
	return &api.UpdatePrivateInfoResponse{ID: c.ID.String(), CreatedAt: c.CreatedAt}, nil
}

func (s *Server) PrivateInfo(ctx context.Context, _ *api.Empty) (*api.PrivateInfoResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	vs, err := s.svc.PrivateInfo.Get(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &api.PrivateInfoResponse{PrivateInfo: convert.ToPrivateInfo(vs)}, nil
}

// --- licenses ---

func (s *Server) ConnectToLicense(ctx context.Context, req *api.LicenseTokenRequest) (*api.LicenseResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	l, err := s.svc.Licenses.Connect(ctx, sess, req.Token)
	if err != nil {
		return nil, err
	}
	return &api.LicenseResponse{License: convert.ToLicense(*l)}, nil
}

func (s *Server) DisconnectFromLicense(ctx context.Context, req *api.LicenseTokenRequest) (*api.Success, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Licenses.Disconnect(ctx, sess, req.Token); err != nil {
		return nil, err
	}
	return &api.Success{Success: true}, nil
}

func (s *Server) AllLicenseTokens(ctx context.Context, _ *api.Empty) (*api.AllLicenseTokensResponse, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	ts, err := s.svc.Licenses.AllTokens(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &api.AllLicenseTokensResponse{Tokens: convert.ToLicenseTokens(ts)}, nil
}
