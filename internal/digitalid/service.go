package digitalid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// issueAttempts bounds retries on TSS id collisions.
const issueAttempts = 3

// Card is a digital ID as shown to its holder or a verifier.
type Card struct {
	*DigitalID
	EffectiveStatus Status `json:"effectiveStatus"`
	Badge           string `json:"badge"`
	Valid           bool   `json:"valid"`
}

// ServiceConfig holds Service collaborators.
type ServiceConfig struct {
	Logger zerolog.Logger
	Now    func() time.Time
}

// Service issues and verifies digital IDs.
type Service struct {
	repo   Repository
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a Service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:   repo,
		now:    cfg.Now,
		logger: cfg.Logger.With().Str("component", "digitalid").Logger(),
	}
}

// Get returns the card of a user or ErrNotFound.
func (s *Service) Get(ctx context.Context, userID string) (*Card, error) {
	d, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.card(d), nil
}

// Issue returns the user's card, issuing a basic-level ID on first call.
// created reports whether a new ID was written.
func (s *Service) Issue(ctx context.Context, userID string) (card *Card, created bool, err error) {
	if d, err := s.repo.GetByUser(ctx, userID); err == nil {
		return s.card(d), false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := s.now().UTC()
	for attempt := 0; attempt < issueAttempts; attempt++ {
		d := &DigitalID{
			UserID:            userID,
			TSSID:             NewTSSID(now),
			IssuedAt:          now,
			ExpiresAt:         ExpiryFor(now),
			Status:            StatusActive,
			VerificationLevel: LevelBasic,
			UpdatedAt:         now,
		}
		err := s.repo.Create(ctx, d)
		if err == nil {
			s.logger.Info().Str("user_id", userID).Str("tss_id", d.TSSID).Msg("digital id issued")
			return s.card(d), true, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return nil, false, err
		}
		// a concurrent issue for the same user wins
		if existing, getErr := s.repo.GetByUser(ctx, userID); getErr == nil {
			return s.card(existing), false, nil
		}
	}
	return nil, false, fmt.Errorf("issue digital id: %w", ErrDuplicate)
}

// Verify checks a presented identifier and stamps the verification time.
// Malformed identifiers fail with ErrInvalidID without a lookup.
func (s *Service) Verify(ctx context.Context, tssID string) (*Card, error) {
	if !Valid(tssID) {
		return nil, ErrInvalidID
	}
	d, err := s.repo.GetByTSSID(ctx, tssID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.repo.MarkVerified(ctx, tssID, now); err != nil {
		s.logger.Warn().Err(err).Str("tss_id", tssID).Msg("failed to record verification")
	} else {
		d.LastVerification = &now
	}
	return s.card(d), nil
}

func (s *Service) card(d *DigitalID) *Card {
	status := d.StatusAt(s.now())
	return &Card{
		DigitalID:       d,
		EffectiveStatus: status,
		Badge:           Badge(d.VerificationLevel),
		Valid:           status == StatusActive,
	}
}
