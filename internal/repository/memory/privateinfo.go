package memory

import (
	"context"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// PrivateInfoRepo is the in-memory PrivateInfoRepository.
type PrivateInfoRepo struct{ s *Store }

// Create stores the entry and its messages.
func (r *PrivateInfoRepo) Create(_ context.Context, c *model.PrivateInfoContent, msgs []model.PrivateInfoGroupSessionMessage) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[c.DeviceID]; !ok {
		return errs.ErrNotFound
	}
	c.CreatedAt = s.tick()
	cc := *c
	s.privateInfo[c.ID] = &cc
	for _, m := range msgs {
		m.PrivateInfoContentID = c.ID
		mm := m
		s.privateMessages[m.ID] = &mm
	}
	return nil
}

// LatestForDevices returns the newest entry per device with messages targeted at targetIDKey.
func (r *PrivateInfoRepo) LatestForDevices(_ context.Context, deviceIDs []uuid.UUID, targetIDKey string) ([]model.PrivateInfoWithMessages, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.PrivateInfoWithMessages
	for _, deviceID := range deviceIDs {
		var latest *model.PrivateInfoContent
		for _, p := range s.privateInfo {
			if p.DeviceID == deviceID && (latest == nil || p.CreatedAt.After(latest.CreatedAt)) {
				latest = p
			}
		}
		if latest == nil {
			continue
		}
		pw := model.PrivateInfoWithMessages{Content: *latest}
		for _, m := range s.privateMessages {
			if m.PrivateInfoContentID == latest.ID && m.TargetDeviceIDKey == targetIDKey {
				pw.Messages = append(pw.Messages, *m)
			}
		}
		out = append(out, pw)
	}
	return out, nil
}
