package memory

import (
	"context"
	"sync"
	"time"

	"streamgate/internal/core/domain"
	"streamgate/internal/core/ports"
)

type channelPresence struct {
	active map[domain.SubjectID]struct{}
	peak   int
	joins  int
}

type MemoryViewerRepository struct {
	viewers  map[domain.ViewerID]*domain.Viewer
	presence map[domain.ChannelID]*channelPresence
	mu       sync.RWMutex
}

func NewMemoryViewerRepository() ports.ViewerRepository {
	return &MemoryViewerRepository{
		viewers:  make(map[domain.ViewerID]*domain.Viewer),
		presence: make(map[domain.ChannelID]*channelPresence),
	}
}

func (r *MemoryViewerRepository) SaveViewer(ctx context.Context, viewer *domain.Viewer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.viewers[viewer.ID] = viewer
	return nil
}

func (r *MemoryViewerRepository) GetViewer(ctx context.Context, id domain.ViewerID) (*domain.Viewer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	viewer, exists := r.viewers[id]
	if !exists {
		return nil, domain.ErrViewerNotFound
	}

	return viewer, nil
}

func (r *MemoryViewerRepository) RecordJoin(ctx context.Context, channel domain.ChannelID, subject domain.SubjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.presence[channel]
	if !exists {
		p = &channelPresence{active: make(map[domain.SubjectID]struct{})}
		r.presence[channel] = p
	}

	p.active[subject] = struct{}{}
	p.joins++
	if len(p.active) > p.peak {
		p.peak = len(p.active)
	}
	return nil
}

func (r *MemoryViewerRepository) RecordLeave(ctx context.Context, channel domain.ChannelID, subject domain.SubjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, exists := r.presence[channel]; exists {
		delete(p.active, subject)
	}
	return nil
}

func (r *MemoryViewerRepository) ChannelStats(ctx context.Context, channel domain.ChannelID) (*domain.ChannelStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.presence[channel]
	if !exists {
		return nil, domain.ErrChannelNotFound
	}

	return &domain.ChannelStats{
		Channel:       channel,
		ActiveViewers: len(p.active),
		PeakViewers:   p.peak,
		TotalJoins:    p.joins,
		CollectedAt:   time.Now(),
	}, nil
}
