package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/leafwise/plantid-community/utils"
)

// ErrAllProvidersFailed is returned when no provider produced a result,
// whether by error, timeout or an open breaker.
var ErrAllProvidersFailed = errors.New("all identification providers failed")

// MergedResult is the combined answer from every provider that responded.
type MergedResult struct {
	Suggestions []Suggestion      `json:"suggestions"`
	Health      *HealthAssessment `json:"health,omitempty"`
	Providers   []string          `json:"providers"`
	Partial     bool              `json:"partial"`
}

type boundProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// Identifier fans an image out to every configured provider in parallel,
// each behind its own circuit breaker and deadline, and merges the answers.
type Identifier struct {
	providers []boundProvider
}

// NewIdentifier wires a breaker around each provider. A breaker opens after
// maxFailures consecutive failures and lets a trial call through after openFor.
func NewIdentifier(maxFailures int, openFor time.Duration, providers ...Provider) *Identifier {
	idn := &Identifier{}
	for _, p := range providers {
		p := p
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    p.Name(),
			Timeout: openFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(maxFailures)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if utils.Sugar != nil {
					utils.Sugar.Warnf("breaker %s: %s -> %s", name, from, to)
				}
			},
		})
		idn.providers = append(idn.providers, boundProvider{provider: p, breaker: cb})
	}
	return idn
}

// ProviderCount reports how many providers are configured.
func (idn *Identifier) ProviderCount() int {
	return len(idn.providers)
}

// Identify calls every provider concurrently. Providers run under independent
// deadlines so a slow one cannot starve a fast one, and a failure on one side
// never cancels the other. At least one answer yields a result; Partial marks
// that somebody was missing.
func (idn *Identifier) Identify(ctx context.Context, in IdentifyInput) (*MergedResult, error) {
	if len(idn.providers) == 0 {
		return nil, ErrAllProvidersFailed
	}

	answers := make([]*Identification, len(idn.providers))
	failures := make([]error, len(idn.providers))

	var g errgroup.Group
	for i, bp := range idn.providers {
		i, bp := i, bp
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, bp.provider.Timeout())
			defer cancel()

			out, err := bp.breaker.Execute(func() (interface{}, error) {
				return bp.provider.Identify(cctx, in)
			})
			if err != nil {
				failures[i] = err
				if utils.Sugar != nil {
					utils.Sugar.Warnf("provider %s failed: %v", bp.provider.Name(), err)
				}
				return nil
			}
			answers[i] = out.(*Identification)
			return nil
		})
	}
	_ = g.Wait()

	var responded []*Identification
	for _, a := range answers {
		if a != nil {
			responded = append(responded, a)
		}
	}
	if len(responded) == 0 {
		return nil, ErrAllProvidersFailed
	}

	merged := mergeIdentifications(responded)
	merged.Partial = len(responded) < len(idn.providers)
	return merged, nil
}

// mergeIdentifications combines per-provider answers. Suggestions are keyed
// by normalized scientific name; confidence is the max across providers and
// descriptive detail is kept from whichever provider supplied it first
// (Plant.id answers carry richer detail and are listed first).
func mergeIdentifications(answers []*Identification) *MergedResult {
	merged := &MergedResult{}
	byName := map[string]*Suggestion{}
	var order []string

	for _, ans := range answers {
		merged.Providers = append(merged.Providers, ans.Provider)
		if ans.Health != nil && merged.Health == nil {
			merged.Health = ans.Health
		}
		for _, s := range ans.Suggestions {
			key := normalizeScientificName(s.ScientificName)
			if key == "" {
				continue
			}
			existing, ok := byName[key]
			if !ok {
				copied := s
				byName[key] = &copied
				order = append(order, key)
				continue
			}
			if s.Probability > existing.Probability {
				existing.Probability = s.Probability
			}
			if existing.Family == "" {
				existing.Family = s.Family
			}
			if existing.Genus == "" {
				existing.Genus = s.Genus
			}
			if existing.Description == "" {
				existing.Description = s.Description
			}
			if existing.WikiURL == "" {
				existing.WikiURL = s.WikiURL
			}
			if len(existing.CommonNames) == 0 {
				existing.CommonNames = s.CommonNames
			}
			if existing.Source != s.Source {
				existing.Source = SourceBoth
			}
		}
	}

	for _, key := range order {
		merged.Suggestions = append(merged.Suggestions, *byName[key])
	}
	sort.SliceStable(merged.Suggestions, func(i, j int) bool {
		return merged.Suggestions[i].Probability > merged.Suggestions[j].Probability
	})
	return merged
}

func normalizeScientificName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
