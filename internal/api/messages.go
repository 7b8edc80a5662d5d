package api

import "time"

// --- devices ---

type CreateUserRequest struct {
	UserSigningKey string      `json:"userSigningKey"`
	Device         DeviceInput `json:"device"`
}

type CreateUserResponse struct {
	User   User   `json:"user"`
	Device Device `json:"device"`
}

type AddDeviceRequest struct {
	Device              DeviceInput `json:"device"`
	VerificationMessage string      `json:"verificationMessage"`
	ServerSecret        string      `json:"serverSecret"`
}

type DeviceResponse struct {
	Device Device `json:"device"`
}

type FetchAddDeviceVerificationRequest struct {
	DeviceIDKey  string `json:"deviceIdKey"`
	ServerSecret string `json:"serverSecret"`
}

type FetchAddDeviceVerificationResponse struct {
	ID                  string `json:"id"`
	DeviceIDKey         string `json:"deviceIdKey"`
	VerificationMessage string `json:"verificationMessage"`
}

type DeleteDeviceRequest struct {
	DeviceIDKey string `json:"deviceIdKey"`
}

type DeleteDeviceResponse struct {
	Tombstone DeviceTombstone `json:"tombstone"`
}

type DevicesResponse struct {
	Devices []Device `json:"devices"`
}

type DeviceTombstonesResponse struct {
	Tombstones []DeviceTombstone `json:"tombstones"`
}

// --- one-time keys ---

type SendOneTimeKeysRequest struct {
	OneTimeKeys []OneTimeKey `json:"oneTimeKeys"`
}

type ClaimOneTimeKeysRequest struct {
	DeviceIDKeys []string `json:"deviceIdKeys"`
}

type ClaimOneTimeKeysResponse struct {
	OneTimeKeys []ClaimedKey `json:"oneTimeKeys"`
}

type RemoveOneTimeKeyRequest struct {
	Key string `json:"key"`
}

type UnclaimedOneTimeKeysCountRequest struct {
	DeviceIDKey string `json:"deviceIdKey,omitempty"`
}

type UnclaimedOneTimeKeysCountResponse struct {
	Count int `json:"count"`
}

type OneTimeKeysResponse struct {
	OneTimeKeys []OneTimeKey `json:"oneTimeKeys"`
}

type UpdateFallbackKeyRequest struct {
	FallbackKey          string `json:"fallbackKey"`
	FallbackKeySignature string `json:"fallbackKeySignature"`
}

// --- repositories ---

type CreateRepositoryRequest struct {
	Content ContentInput `json:"content"`
}

type UpdateRepositoryContentRequest struct {
	RepositoryID           string       `json:"repositoryId"`
	Content                ContentInput `json:"content"`
	GroupSessionMessageIDs []string     `json:"groupSessionMessageIds"`
}

type UpdateRepositoryContentAndGroupSessionRequest struct {
	RepositoryID string       `json:"repositoryId"`
	Content      ContentInput `json:"content"`
}

type ContentCommitResponse struct {
	Repository             Repository `json:"repository"`
	ContentID              string     `json:"contentId"`
	GroupSessionMessageIDs []string   `json:"groupSessionMessageIds"`
}

type RepositoryRequest struct {
	ID string `json:"id"`
}

type RepositoryResponse struct {
	Repository Repository `json:"repository"`
}

type AllRepositoriesRequest struct {
	// LastContentUpdateIntegrityIDs maps repository ids to the token the client already holds.
	LastContentUpdateIntegrityIDs map[string]string `json:"lastContentUpdateIntegrityIds,omitempty"`
}

type AllRepositoriesResponse struct {
	Repositories []Repository          `json:"repositories"`
	Tombstones   []RepositoryTombstone `json:"repositoryTombstones"`
}

type RepositoryDevicesRequest struct {
	RepositoryID           string   `json:"repositoryId"`
	GroupSessionMessageIDs []string `json:"groupSessionMessageIds"`
}

type RepositoryDevicesResponse struct {
	Devices                                  []Device `json:"devices"`
	GroupSessionMessageIDsMatchTargetDevices bool     `json:"groupSessionMessageIdsMatchTargetDevices"`
	AllMessagesFound                         bool     `json:"allMessagesFound"`
}

type RepositoryGroupMessages struct {
	RepositoryID         string                `json:"repositoryId"`
	GroupSessionMessages []GroupSessionMessage `json:"groupSessionMessages"`
}

type AddCollaboratorRequest struct {
	ContactID        string                    `json:"contactId"`
	RepositoryGroups []RepositoryGroupMessages `json:"repositoryGroups"`
}

type CollaboratorResult struct {
	RepositoryID           string   `json:"repositoryId"`
	GroupSessionMessageIDs []string `json:"groupSessionMessageIds"`
}

type AddCollaboratorResponse struct {
	Results []CollaboratorResult `json:"results"`
}

type RemoveCollaboratorRequest struct {
	RepositoryID   string `json:"repositoryId"`
	CollaboratorID string `json:"collaboratorId"`
}

// --- contacts ---

type CreateContactInvitationRequest struct {
	ServerSecret string `json:"serverSecret"`
}

type ContactInvitationResponse struct {
	Invitation ContactInvitation `json:"contactInvitation"`
}

type ContactInvitationsResponse struct {
	Invitations []ContactInvitation `json:"contactInvitations"`
}

type InvitationLookup struct {
	UserID       string `json:"userId"`
	SigningKey   string `json:"signingKey"`
	ServerSecret string `json:"serverSecret"`
}

type AcceptContactInvitationRequest struct {
	InvitationLookup
	Signature          string `json:"signature"`
	ContactInfoMessage string `json:"contactInfoMessage"`
}

type CompleteContactInvitationRequest struct {
	ContactInvitationID string `json:"contactInvitationId"`
	UserID              string `json:"userId"`
	UserSigningKey      string `json:"userSigningKey"`
	Signature           string `json:"signature"`
}

type IDRequest struct {
	ID string `json:"id"`
}

type ContactsResponse struct {
	Contacts []Contact `json:"contacts"`
}

// --- private info ---

type UpdatePrivateInfoRequest struct {
	EncryptedContent                string                `json:"encryptedContent"`
	PrivateInfoGroupSessionMessages []GroupSessionMessage `json:"privateInfoGroupSessionMessages"`
}

type UpdatePrivateInfoResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

type PrivateInfoResponse struct {
	PrivateInfo []PrivateInfo `json:"privateInfo"`
}

// --- licenses ---

type LicenseTokenRequest struct {
	Token string `json:"token"`
}

type LicenseResponse struct {
	License License `json:"license"`
}

type AllLicenseTokensResponse struct {
	Tokens []LicenseToken `json:"tokens"`
}

// --- billing portal (HTTP) ---

type SendBillingAuthEmailRequest struct {
	Email string `json:"email"`
}

type AuthenticateBillingRequest struct {
	EmailToken string `json:"emailToken"`
}

type AuthenticateBillingResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

type AddUserToLicenseRequest struct {
	UserID string `json:"userId"`
}

// Error is the JSON body of failed HTTP requests.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
