package analysis

import (
	"context"
	"errors"
	"sort"

	"fireeye-analysis/internal/fireeye"
)

type Environment struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Environments lists the profiles of the appliance's sensor sorted by id.
func (s *Service) Environments(ctx context.Context, tok fireeye.Token) ([]Environment, error) {
	cfg, err := s.vendor.Config(ctx, tok)
	if err != nil {
		return nil, upstream(OpEnvironments, err)
	}
	// The appliance reports a single sensor.
	if cfg == nil || len(cfg.Entity.Sensors) == 0 {
		return nil, upstream(OpEnvironments, errors.New("configuration lists no sensors"))
	}

	profiles := cfg.Entity.Sensors[0].Profiles
	envs := make([]Environment, 0, len(profiles))
	for _, p := range profiles {
		envs = append(envs, Environment{ID: p.ID, Name: p.Name})
	}
	sort.SliceStable(envs, func(i, j int) bool { return envs[i].ID < envs[j].ID })
	return envs, nil
}
