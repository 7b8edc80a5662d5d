package service

import (
	"context"
	"fmt"

	"github.com/and161185/collabvault/internal/envelope"
	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// PrivateInfoService syncs private entries across the caller's own devices.
type PrivateInfoService interface {
	Update(ctx context.Context, s *model.Session, encryptedContent string, msgs []model.GroupSessionMessageInput) (*model.PrivateInfoContent, error)
	Get(ctx context.Context, s *model.Session) ([]model.PrivateInfoView, error)
}

type PrivateInfoServiceImpl struct {
	info    repository.PrivateInfoRepository
	devices repository.DeviceRepository
	log     *zap.Logger
}

// NewPrivateInfoService constructs PrivateInfoService.
func NewPrivateInfoService(info repository.PrivateInfoRepository, devices repository.DeviceRepository, log *zap.Logger) *PrivateInfoServiceImpl {
	return &PrivateInfoServiceImpl{info: info, devices: devices, log: log}
}

// Update stores a new entry authored by the envelope's sender device.
func (s *PrivateInfoServiceImpl) Update(ctx context.Context, sess *model.Session, encryptedContent string, in []model.GroupSessionMessageInput) (*model.PrivateInfoContent, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	sender, err := envelope.Sender(ctx, s.devices, sess.User.ID, encryptedContent)
	if err != nil {
		return nil, err
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}
	c := &model.PrivateInfoContent{ID: id, DeviceID: sender.ID, EncryptedContent: encryptedContent}
	msgs := make([]model.PrivateInfoGroupSessionMessage, 0, len(in))
	for i, m := range in {
		if m.TargetDeviceIDKey == "" {
			return nil, errs.Validationf("privateInfoGroupSessionMessages[%d]: empty target", i)
		}
		mid, err := newID()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, model.PrivateInfoGroupSessionMessage{
			ID:                   mid,
			PrivateInfoContentID: id,
			TargetDeviceIDKey:    m.TargetDeviceIDKey,
			Type:                 m.Type,
			Body:                 m.Body,
		})
	}
	if err := s.info.Create(ctx, c, msgs); err != nil {
		return nil, fmt.Errorf("update private info: %w", err)
	}
	return c, nil
}

// Get returns the newest entry of every own device that the calling device can decrypt.
func (s *PrivateInfoServiceImpl) Get(ctx context.Context, sess *model.Session) ([]model.PrivateInfoView, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	devices, err := s.devices.ListByUser(ctx, sess.User.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]model.Device, len(devices))
	ids := make([]uuid.UUID, 0, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}
	latest, err := s.info.LatestForDevices(ctx, ids, sess.Device.IDKey)
	if err != nil {
		return nil, err
	}
	out := make([]model.PrivateInfoView, 0, len(latest))
	for _, e := range latest {
		if len(e.Messages) == 0 {
			s.log.Debug("private info not decryptable by device", zap.String("content", e.Content.ID.String()))
			continue
		}
		out = append(out, model.PrivateInfoView{
			Content:             e.Content,
			AuthorDevice:        byID[e.Content.DeviceID],
			GroupSessionMessage: e.Messages[0],
		})
	}
	return out, nil
}
