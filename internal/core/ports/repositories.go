package ports

import (
	"context"

	"streamgate/internal/core/domain"
)

// ViewerRepository stores registered viewers and channel presence.
type ViewerRepository interface {
	SaveViewer(ctx context.Context, viewer *domain.Viewer) error
	GetViewer(ctx context.Context, id domain.ViewerID) (*domain.Viewer, error)
	RecordJoin(ctx context.Context, channel domain.ChannelID, subject domain.SubjectID) error
	RecordLeave(ctx context.Context, channel domain.ChannelID, subject domain.SubjectID) error
	ChannelStats(ctx context.Context, channel domain.ChannelID) (*domain.ChannelStats, error)
}
