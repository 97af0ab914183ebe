package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

// ErrCatalogUnavailable indicates the upstream catalog is refusing requests,
// for example because its circuit breaker is open.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// CatalogStatusError reports a non-success status from the upstream catalog.
type CatalogStatusError struct {
	Operation  string
	StatusCode int
}

func (e CatalogStatusError) Error() string {
	return fmt.Sprintf("catalog %s: unexpected status %d", e.Operation, e.StatusCode)
}

// CatalogSearcher fetches candidate tracks from the upstream catalog.
type CatalogSearcher interface {
	Search(ctx context.Context, params domain.SearchParams, limit int) ([]domain.Track, error)
}

// ChartSource lists the artists currently on the upstream charts.
type ChartSource interface {
	TopChartArtists(ctx context.Context, limit int) ([]string, error)
}
