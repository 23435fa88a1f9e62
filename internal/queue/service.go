package queue

import (
	"context"
	"time"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Snapshot returns the ranked queue as of now.
func (s *Service) Snapshot(ctx context.Context) ([]Entry, error) {
	rows, err := s.repo.Active(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(rows, s.now()), nil
}
