package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// SubscriptionStatus mirrors the billing provider status of an account.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionTrialing SubscriptionStatus = "TRIALING"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionDeleted  SubscriptionStatus = "DELETED"
)

// BillingAccount owns licenses.
type BillingAccount struct {
	ID                 uuid.UUID
	Email              string
	SubscriptionPlan   string
	SubscriptionStatus SubscriptionStatus
	CreatedAt          time.Time
}

// EmailToken is a one-shot login token sent by email, stored hashed.
type EmailToken struct {
	TokenHash  string
	Email      string
	Expiration time.Time
	Used       bool
}

// License grants a user access; billing accounts hand out tokens users connect with.
type License struct {
	ID               uuid.UUID
	Token            string
	BillingAccountID uuid.UUID
	UserID           uuid.NullUUID
	CreatedAt        time.Time
}

// LicenseToken is a license as seen by the connected user.
type LicenseToken struct {
	Token            string
	IsActive         bool
	SubscriptionPlan string
}
