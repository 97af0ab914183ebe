package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
)

// SuggestionsConfig bounds suggestion requests.
type SuggestionsConfig struct {
	DefaultLimit int
	MaxLimit     int
	MinLikes     int
}

// SuggestionsRequest asks for a batch of tracks. User is nil for anonymous callers.
type SuggestionsRequest struct {
	Limit      int
	ExcludeIDs []string
	User       *domain.User
}

// SuggestionsMeta describes how a batch was produced.
type SuggestionsMeta struct {
	Requested       int  `json:"requested"`
	Delivered       int  `json:"delivered"`
	QueueSizeAfter  int  `json:"queue_size_after"`
	RefillTriggered bool `json:"refill_triggered"`
	Personalized    bool `json:"personalized"`
}

// SuggestionsResponse is the batch delivered to a client.
type SuggestionsResponse struct {
	Data []domain.Track  `json:"data"`
	Meta SuggestionsMeta `json:"meta"`
}

// SuggestionsService serves batches from the candidate queue, personalized
// for authenticated users.
type SuggestionsService struct {
	queue        ports.CandidateQueue
	refill       ports.RefillRequester
	personalizer *PersonalizationService
	cfg          SuggestionsConfig
	logger       zerolog.Logger
}

// NewSuggestionsService constructs a SuggestionsService. refill may be nil.
func NewSuggestionsService(queue ports.CandidateQueue, refill ports.RefillRequester, personalizer *PersonalizationService, cfg SuggestionsConfig, logger zerolog.Logger) *SuggestionsService {
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit < 1 {
		cfg.MaxLimit = 50
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	if cfg.MinLikes < 1 {
		cfg.MinLikes = DefaultMinLikes
	}
	return &SuggestionsService{
		queue:        queue,
		refill:       refill,
		personalizer: personalizer,
		cfg:          cfg,
		logger:       logger.With().Str("component", "suggestions").Logger(),
	}
}

// ClampLimit applies the default to a zero limit and bounds it to [1, MaxLimit].
func (s *SuggestionsService) ClampLimit(limit int) int {
	if limit == 0 {
		limit = s.cfg.DefaultLimit
	}
	return max(1, min(limit, s.cfg.MaxLimit))
}

// Get dequeues up to the requested number of tracks. Personalization only
// reorders the batch; it never changes which tracks are delivered.
func (s *SuggestionsService) Get(ctx context.Context, req SuggestionsRequest) (SuggestionsResponse, error) {
	limit := s.ClampLimit(req.Limit)

	exclude := make(map[string]struct{}, len(req.ExcludeIDs))
	for _, id := range req.ExcludeIDs {
		if id != "" {
			exclude[id] = struct{}{}
		}
	}

	tracks, err := s.queue.Dequeue(ctx, limit, exclude)
	if err != nil {
		return SuggestionsResponse{}, fmt.Errorf("service: dequeue suggestions: %w", err)
	}

	meta := SuggestionsMeta{Requested: limit, Delivered: len(tracks)}

	userID := ""
	if req.User != nil {
		userID = req.User.ID
	}

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read queue stats")
	} else {
		meta.QueueSizeAfter = stats.CurrentSize
		if stats.IsLow && s.refill != nil {
			meta.RefillTriggered = s.refill.RequestRefill(userID)
		}
	}

	if req.User != nil && s.personalizer != nil {
		result := s.personalizer.Personalize(ctx, tracks, *req.User, s.cfg.MinLikes)
		tracks = result.Tracks
		meta.Personalized = result.Applied()
	}

	if len(tracks) < limit {
		s.logger.Info().Int("requested", limit).Int("delivered", len(tracks)).Msg("queue could not fill request")
	}

	return SuggestionsResponse{Data: tracks, Meta: meta}, nil
}
