// Package api defines the JSON wire messages of the collabvault.v1.Sync service.
// Identifiers travel as canonical UUID strings; timestamps as RFC 3339.
package api

import "time"

type User struct {
	ID          string    `json:"id"`
	SigningKeys []string  `json:"signingKeys"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Device struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"userId"`
	IDKey                string    `json:"idKey"`
	SigningKey           string    `json:"signingKey"`
	Signatures           []string  `json:"signatures"`
	FallbackKey          string    `json:"fallbackKey"`
	FallbackKeySignature string    `json:"fallbackKeySignature"`
	CreatedAt            time.Time `json:"createdAt"`
}

type DeviceTombstone struct {
	ID         string `json:"id"`
	IDKey      string `json:"idKey"`
	SigningKey string `json:"signingKey"`
	UserID     string `json:"userId"`
}

type OneTimeKey struct {
	Key       string `json:"key"`
	Signature string `json:"signature"`
}

type DeviceInput struct {
	IDKey                string       `json:"idKey"`
	SigningKey           string       `json:"signingKey"`
	Signature            string       `json:"signature"`
	FallbackKey          string       `json:"fallbackKey"`
	FallbackKeySignature string       `json:"fallbackKeySignature"`
	OneTimeKeys          []OneTimeKey `json:"oneTimeKeys"`
}

type ClaimedKey struct {
	DeviceIDKey string `json:"deviceIdKey"`
	Key         string `json:"key"`
	Signature   string `json:"signature"`
	Fallback    bool   `json:"fallback"`
}

type GroupSessionMessage struct {
	ID                string `json:"id,omitempty"`
	TargetDeviceIDKey string `json:"targetDeviceIdKey"`
	Type              int    `json:"type"`
	Body              string `json:"body"`
}

type ContentInput struct {
	EncryptedContent       string                `json:"encryptedContent"`
	SchemaVersion          *int                  `json:"schemaVersion,omitempty"`
	SchemaVersionSignature *string               `json:"schemaVersionSignature,omitempty"`
	GroupSessionMessages   []GroupSessionMessage `json:"groupSessionMessages,omitempty"`
}

type Content struct {
	ID                     string              `json:"id"`
	EncryptedContent       string              `json:"encryptedContent"`
	SchemaVersion          *int                `json:"schemaVersion,omitempty"`
	SchemaVersionSignature *string             `json:"schemaVersionSignature,omitempty"`
	CreatedAt              time.Time           `json:"createdAt"`
	AuthorUserID           string              `json:"authorUserId"`
	AuthorDevice           Device              `json:"authorDevice"`
	GroupSessionMessage    GroupSessionMessage `json:"groupSessionMessage"`
}

type Repository struct {
	ID                           string    `json:"id"`
	CreatorID                    string    `json:"creatorId"`
	Collaborators                []string  `json:"collaborators"`
	LastContentUpdateIntegrityID string    `json:"lastContentUpdateIntegrityId"`
	IsCreator                    bool      `json:"isCreator"`
	Content                      []Content `json:"content,omitempty"`
}

type RepositoryTombstone struct {
	ID string `json:"id"`
}

type Contact struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	ContactUserID     string    `json:"contactUserId"`
	SigningKey        string    `json:"signingKey"`
	ContactSigningKey string    `json:"contactSigningKey"`
	Signatures        []string  `json:"signatures"`
	CreatedAt         time.Time `json:"createdAt"`
}

type ContactInvitation struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	SigningKey         string    `json:"signingKey"`
	ServerSecret       string    `json:"serverSecret"`
	Status             string    `json:"status"`
	ContactInfoMessage *string   `json:"contactInfoMessage,omitempty"`
	AcceptedByUserID   string    `json:"acceptedByUserId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

type PrivateInfo struct {
	ID                  string              `json:"id"`
	EncryptedContent    string              `json:"encryptedContent"`
	CreatedAt           time.Time           `json:"createdAt"`
	AuthorDevice        Device              `json:"authorDevice"`
	GroupSessionMessage GroupSessionMessage `json:"privateInfoGroupSessionMessage"`
}

type License struct {
	ID               string `json:"id"`
	Token            string `json:"token"`
	BillingAccountID string `json:"billingAccountId"`
	UserID           string `json:"userId,omitempty"`
}

type LicenseToken struct {
	Token            string `json:"token"`
	IsActive         bool   `json:"isActive"`
	SubscriptionPlan string `json:"subscriptionPlan"`
}

type BillingAccount struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	SubscriptionPlan   string    `json:"subscriptionPlan"`
	SubscriptionStatus string    `json:"subscriptionStatus"`
	Licenses           []License `json:"licenses"`
}

// Empty is used by methods without a meaningful request or response body.
type Empty struct{}

// Success is returned by mutations that only report completion.
type Success struct {
	Success bool `json:"success"`
}
