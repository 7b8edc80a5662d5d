package grpcserver

import (
	"context"

	"github.com/and161185/collabvault/internal/model"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "collabvault.v1.Sync"

// syncHandler is the handler type checked by grpc.Server.RegisterService.
type syncHandler interface {
	session(ctx context.Context) (*model.Session, error)
}

// unary builds the method descriptor of one handler. The request is decoded with the
// codec negotiated for the call and passed through the server's interceptor chain.
func unary[Req, Resp any](name string, call func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := func(ctx context.Context, req any) (any, error) {
				return call(srv.(*Server), ctx, req.(*Req))
			}
			if ic == nil {
				return h(ctx, in)
			}
			return ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, h)
		},
	}
}

// ServiceDesc describes collabvault.v1.Sync. Messages are the structs of package api
// and travel with the JSON codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*syncHandler)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateUser", (*Server).CreateUser),
		unary("AddDevice", (*Server).AddDevice),
		unary("FetchAddDeviceVerification", (*Server).FetchAddDeviceVerification),
		unary("DeleteDevice", (*Server).DeleteDevice),
		unary("DeleteUser", (*Server).DeleteUser),
		unary("Devices", (*Server).Devices),
		unary("DeviceTombstones", (*Server).DeviceTombstones),

		unary("SendOneTimeKeys", (*Server).SendOneTimeKeys),
		unary("ClaimOneTimeKeysForMultipleDevices", (*Server).ClaimOneTimeKeysForMultipleDevices),
		unary("RemoveOneTimeKey", (*Server).RemoveOneTimeKey),
		unary("UnclaimedOneTimeKeysCount", (*Server).UnclaimedOneTimeKeysCount),
		unary("OneTimeKeys", (*Server).OneTimeKeys),
		unary("UpdateFallbackKey", (*Server).UpdateFallbackKey),

		unary("CreateRepository", (*Server).CreateRepository),
		unary("UpdateRepositoryContent", (*Server).UpdateRepositoryContent),
		unary("UpdateRepositoryContentAndGroupSession", (*Server).UpdateRepositoryContentAndGroupSession),
		unary("Repository", (*Server).Repository),
		unary("AllRepositories", (*Server).AllRepositories),
		unary("RepositoryDevices", (*Server).RepositoryDevices),
		unary("AddCollaboratorToRepositories", (*Server).AddCollaboratorToRepositories),
		unary("RemoveCollaboratorFromRepository", (*Server).RemoveCollaboratorFromRepository),
		unary("DeleteRepository", (*Server).DeleteRepository),

		unary("CreateContactInvitation", (*Server).CreateContactInvitation),
		unary("ContactInvitations", (*Server).ContactInvitations),
		unary("DevicesForContactInvitation", (*Server).DevicesForContactInvitation),
		unary("AcceptContactInvitation", (*Server).AcceptContactInvitation),
		unary("CompleteContactInvitation", (*Server).CompleteContactInvitation),
		unary("DeleteContactInvitation", (*Server).DeleteContactInvitation),
		unary("Contacts", (*Server).Contacts),
		unary("DevicesForContact", (*Server).DevicesForContact),
		unary("DeleteContact", (*Server).DeleteContact),

		unary("UpdatePrivateInfo", (*Server).UpdatePrivateInfo),
		unary("PrivateInfo", (*Server).PrivateInfo),

		unary("ConnectToLicense", (*Server).ConnectToLicense),
		unary("DisconnectFromLicense", (*Server).DisconnectFromLicense),
		unary("AllLicenseTokens", (*Server).AllLicenseTokens),
	},
	Metadata: "collabvault/v1/sync",
}

// Register attaches srv to gs.
func Register(gs grpc.ServiceRegistrar, srv *Server) {
	gs.RegisterService(&ServiceDesc, srv)
}

// Methods lists the method names of the service.
func Methods() []string {
	out := make([]string, 0, len(ServiceDesc.Methods))
	for _, m := range ServiceDesc.Methods {
		out = append(out, m.MethodName)
	}
	return out
}
