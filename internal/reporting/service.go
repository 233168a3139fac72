package reporting

import (
	"context"
	"errors"
	"time"

	"call-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. Both call stores
// implement it.
type Repository interface {
	ListCreated(ctx context.Context, from, to time.Time, t calls.ContextType) ([]calls.Session, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.ContextType != "" && !req.ContextType.Valid() {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCreated(ctx, req.Range.From, req.Range.To, req.ContextType)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		Range:       req.Range,
		ContextType: req.ContextType,
		ByContext:   make(map[calls.ContextType]int, 3),
	}
	for _, c := range rows {
		out.TotalCalls++
		out.ByContext[c.ContextType]++
		if c.Mode == calls.ModeConference {
			out.ConferenceCalls++
		}
		switch {
		case c.Active:
			out.ActiveCalls++
		case c.Missed:
			out.MissedCalls++
		default:
			out.CompletedCalls++
			if c.DurationSeconds != nil {
				out.TotalDurationSeconds += *c.DurationSeconds
			}
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	if decided := out.CompletedCalls + out.MissedCalls; decided > 0 {
		out.AnswerRate = float64(out.CompletedCalls) / float64(decided)
	}
	return out, nil
}
