package postgres

import (
	"context"
	"errors"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// ContactRepo implements ContactRepository using PostgreSQL.
type ContactRepo struct{ db *DB }

// NewContactRepo constructs a contact repository.
func NewContactRepo(db *DB) *ContactRepo { return &ContactRepo{db: db} }

const invitationColumns = `id, user_id, signing_key, server_secret, status, contact_info_message, accepted_by_user_id, created_at`

const contactColumns = `id, user_id, contact_user_id, signing_key, contact_signing_key, signatures, created_at`

func scanInvitation(row pgx.Row) (*model.ContactInvitation, error) {
	var (
		inv    model.ContactInvitation
		status string
	)
	if err := row.Scan(&inv.ID, &inv.UserID, &inv.SigningKey, &inv.ServerSecret, &status,
		&inv.ContactInfoMessage, &inv.AcceptedByUserID, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.Status = model.InvitationStatus(status)
	return &inv, nil
}

func scanContact(row pgx.Row) (*model.Contact, error) {
	var c model.Contact
	if err := row.Scan(&c.ID, &c.UserID, &c.ContactUserID, &c.SigningKey, &c.ContactSigningKey,
		&c.Signatures, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func insertContact(ctx context.Context, tx pgx.Tx, c *model.Contact) error {
	const q = `
INSERT INTO contacts (id, user_id, contact_user_id, signing_key, contact_signing_key, signatures)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	return tx.QueryRow(ctx, q, c.ID, c.UserID, c.ContactUserID, c.SigningKey, c.ContactSigningKey, c.Signatures).
		Scan(&c.CreatedAt)
}

// CreateInvitation inserts a PENDING invitation.
func (r *ContactRepo) CreateInvitation(ctx context.Context, inv *model.ContactInvitation) error {
	const q = `
INSERT INTO contact_invitations (id, user_id, signing_key, server_secret, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	return r.db.Pool.QueryRow(ctx, q, inv.ID, inv.UserID, inv.SigningKey, inv.ServerSecret, string(inv.Status)).
		Scan(&inv.CreatedAt)
}

// GetInvitation loads an invitation by id.
func (r *ContactRepo) GetInvitation(ctx context.Context, id uuid.UUID) (*model.ContactInvitation, error) {
	inv, err := scanInvitation(r.db.Pool.QueryRow(ctx, `SELECT `+invitationColumns+` FROM contact_invitations WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return inv, nil
}

// FindOpenInvitation returns the newest non-completed invitation for the triple.
func (r *ContactRepo) FindOpenInvitation(ctx context.Context, l model.InvitationLookup) (*model.ContactInvitation, error) {
	const q = `
SELECT ` + invitationColumns + `
FROM contact_invitations
WHERE user_id=$1 AND signing_key=$2 AND server_secret=$3 AND status<>'COMPLETED'
ORDER BY created_at DESC
LIMIT 1`
	inv, err := scanInvitation(r.db.Pool.QueryRow(ctx, q, l.UserID, l.SigningKey, l.ServerSecret))
	if err != nil {
		return nil, notFound(err)
	}
	return inv, nil
}

// AcceptInvitation locks the first PENDING match, marks it ACCEPTED and stores the invitee's contact.
func (r *ContactRepo) AcceptInvitation(ctx context.Context, l model.InvitationLookup, acceptedBy uuid.UUID, contactInfoMessage string, c *model.Contact) (*model.ContactInvitation, error) {
	const sel = `
SELECT ` + invitationColumns + `
FROM contact_invitations
WHERE user_id=$1 AND signing_key=$2 AND server_secret=$3 AND status='PENDING'
ORDER BY created_at
LIMIT 1
FOR UPDATE`
	const upd = `
UPDATE contact_invitations
SET status='ACCEPTED', contact_info_message=$2, accepted_by_user_id=$3
WHERE id=$1`

	var inv *model.ContactInvitation
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		inv, err = scanInvitation(tx.QueryRow(ctx, sel, l.UserID, l.SigningKey, l.ServerSecret))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrCannotAcceptInvitation
			}
			return err
		}
		if _, err := tx.Exec(ctx, upd, inv.ID, contactInfoMessage, acceptedBy); err != nil {
			return err
		}
		inv.Status = model.InvitationAccepted
		inv.ContactInfoMessage = &contactInfoMessage
		inv.AcceptedByUserID = uuid.NullUUID{UUID: acceptedBy, Valid: true}
		return insertContact(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// CompleteInvitation finishes the handshake on the inviter side.
func (r *ContactRepo) CompleteInvitation(ctx context.Context, id, inviterID uuid.UUID, c *model.Contact) (*model.ContactInvitation, error) {
	const sel = `SELECT ` + invitationColumns + ` FROM contact_invitations WHERE id=$1 FOR UPDATE`
	const upd = `UPDATE contact_invitations SET status='COMPLETED' WHERE id=$1`

	var inv *model.ContactInvitation
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		if inv, err = scanInvitation(tx.QueryRow(ctx, sel, id)); err != nil {
			return notFound(err)
		}
		if err := repository.CheckCompletable(inv, inviterID, c.ContactUserID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upd, id); err != nil {
			return err
		}
		inv.Status = model.InvitationCompleted
		return insertContact(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvitations returns the user's open invitations, newest first.
func (r *ContactRepo) ListInvitations(ctx context.Context, userID uuid.UUID) ([]model.ContactInvitation, error) {
	const q = `
SELECT ` + invitationColumns + `
FROM contact_invitations
WHERE user_id=$1 AND status<>'COMPLETED'
ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ContactInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// DeleteInvitation removes an invitation.
func (r *ContactRepo) DeleteInvitation(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM contact_invitations WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// GetContact loads a contact by id.
func (r *ContactRepo) GetContact(ctx context.Context, id uuid.UUID) (*model.Contact, error) {
	c, err := scanContact(r.db.Pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListContacts returns the contacts owned by userID.
func (r *ContactRepo) ListContacts(ctx context.Context, userID uuid.UUID) ([]model.Contact, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DeleteContact removes a contact.
func (r *ContactRepo) DeleteContact(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM contacts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
