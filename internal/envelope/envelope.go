// Package envelope reads the cleartext header of encrypted content envelopes.
package envelope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

type header struct {
	SenderIDKey string `json:"senderIdKey"`
}

// SenderIDKey extracts the identity key of the device that encrypted the envelope.
func SenderIDKey(encryptedContent string) (string, error) {
	var h header
	if err := json.Unmarshal([]byte(encryptedContent), &h); err != nil {
		return "", errs.Validationf("encrypted content is not an envelope")
	}
	if h.SenderIDKey == "" {
		return "", errs.Validationf("envelope has no sender")
	}
	return h.SenderIDKey, nil
}

// DeviceLookup resolves devices by identity key.
type DeviceLookup interface {
	GetByIDKey(ctx context.Context, idKey string) (*model.Device, error)
}

// Sender resolves the sending device of the envelope and checks it belongs to userID.
func Sender(ctx context.Context, devices DeviceLookup, userID uuid.UUID, encryptedContent string) (*model.Device, error) {
	idKey, err := SenderIDKey(encryptedContent)
	if err != nil {
		return nil, err
	}
	d, err := devices.GetByIDKey(ctx, idKey)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("sender device: %w", errs.ErrNotFound)
		}
		return nil, err
	}
	if d.UserID != userID {
		return nil, errs.ErrAuthorizationFailed
	}
	return d, nil
}
