package channelstore

import (
	"context"

	"github.com/llmweaver/gateway/internal/domain"
)

// ModelCatalog enumerates which public model ids a channel exposes. The
// only implementation in this repo is the static one below, reading
// already-loaded ModelMapping rows — this interface exists solely as a
// seam for GET /v1/models, not to drive a live per-provider upstream
// model-list fetch. Select does not consult it; it reads each channel's
// mappings directly.
type ModelCatalog interface {
	ListModels(ctx context.Context, channel domain.Channel) ([]string, error)
}

// StaticCatalog reads a channel's own ModelMapping set.
type StaticCatalog struct{}

func (StaticCatalog) ListModels(_ context.Context, channel domain.Channel) ([]string, error) {
	models := make([]string, 0, len(channel.Mappings))
	for _, m := range channel.Mappings {
		models = append(models, m.PublicModelID)
	}
	return models, nil
}
