package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ic-nightfury/shock-and-fade-sub002/internal/types"
)

// rosterEntry is one market in the static roster file. Market discovery
// itself is out of scope; this file is how an operator tells the engine
// which markets to track until a discovery poller exists.
type rosterEntry struct {
	Slug          string    `yaml:"slug"`
	Sport         string    `yaml:"sport"`
	ConditionID   string    `yaml:"condition_id"`
	TokenIDs      [2]string `yaml:"token_ids"`
	Outcomes      [2]string `yaml:"outcomes"`
	NegRisk       bool      `yaml:"neg_risk"`
	GameStartTime time.Time `yaml:"game_start_time"`
}

// loadRoster reads a YAML list of markets from path and converts each
// entry to types.Market. A missing file yields an empty roster rather than
// an error, so the engine can still start (e.g. for a dashboard-only
// smoke test) and have markets added later via MarketRegistry.Upsert.
func loadRoster(path string) ([]types.Market, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("roster: read %s: %w", path, err)
	}

	var entries []rosterEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("roster: parse %s: %w", path, err)
	}

	markets := make([]types.Market, 0, len(entries))
	for _, e := range entries {
		if e.Slug == "" || e.TokenIDs[0] == "" || e.TokenIDs[1] == "" {
			return nil, fmt.Errorf("roster: entry %q missing slug or token_ids", e.Slug)
		}
		markets = append(markets, types.Market{
			Slug:          e.Slug,
			Sport:         types.Sport(e.Sport),
			ConditionID:   e.ConditionID,
			TokenIDs:      e.TokenIDs,
			Outcomes:      e.Outcomes,
			NegRisk:       e.NegRisk,
			GameStartTime: e.GameStartTime,
			State:         types.MarketUpcoming,
		})
	}
	return markets, nil
}
