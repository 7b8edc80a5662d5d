package repository

import (
	"fmt"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// CheckCompletable reports whether inviterID may complete inv for inviteeID.
// Backends call it with the invitation row locked.
func CheckCompletable(inv *model.ContactInvitation, inviterID, inviteeID uuid.UUID) error {
	if inv.UserID != inviterID {
		return errs.ErrAuthorizationFailed
	}
	if inv.Status != model.InvitationAccepted {
		return fmt.Errorf("%w: invitation is %s", errs.ErrInvalidState, inv.Status)
	}
	if inv.AcceptedByUserID.Valid && inv.AcceptedByUserID.UUID != inviteeID {
		return fmt.Errorf("%w: invitation was accepted by another user", errs.ErrInvalidState)
	}
	return nil
}
