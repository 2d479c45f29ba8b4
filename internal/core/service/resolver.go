package service

import (
	"fmt"
	"time"

	"github.com/berfenger/exportlimit/internal/config"
	"github.com/berfenger/exportlimit/internal/core/domain"
	"github.com/berfenger/exportlimit/internal/core/port"

	"go.uber.org/zap"
)

// Resolver maps a role to the first candidate that answers a read.
type Resolver struct {
	bus     port.Bus
	devices config.DevicesConfig
	now     func() time.Time
	logger  *zap.Logger
}

func NewResolver(bus port.Bus, devices config.DevicesConfig, logger *zap.Logger) *Resolver {
	return &Resolver{
		bus:     bus,
		devices: devices,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "resolver")),
	}
}

func (r *Resolver) Resolve(role domain.Role) (domain.Endpoint, error) {
	candidates := r.devices.Candidates(role)
	attempts := make([]Attempt[domain.Endpoint], len(candidates))
	for i, candidate := range candidates {
		attempts[i] = Attempt[domain.Endpoint]{
			Name: candidate.ServiceID + candidate.ObjectPath,
			Run: func() (domain.Endpoint, error) {
				if _, err := r.bus.Read(candidate.ServiceID, candidate.ObjectPath); err != nil {
					return domain.Endpoint{}, err
				}
				return domain.EndpointFromCandidate(candidate, r.now()), nil
			},
		}
	}
	ep, _, err := Chain[domain.Endpoint]{
		Attempts:  attempts,
		Exhausted: domain.ErrDeviceNotFound,
		OnFailure: func(name string, err error) {
			r.logger.Debug("resolver: candidate did not answer", zap.String("role", string(role)), zap.String("candidate", name), zap.Error(err))
		},
	}.Run()
	if err != nil {
		return domain.Endpoint{}, fmt.Errorf("%s: %w", role, err)
	}
	r.logger.Info("resolver: endpoint resolved", zap.String("role", string(role)), zap.String("service", ep.ServiceID), zap.String("path", ep.ObjectPath))
	return ep, nil
}

// Endpoint returns the cached endpoint of role, resolving and caching it on a miss.
func (r *Resolver) Endpoint(cache *EndpointCache, role domain.Role) (domain.Endpoint, error) {
	if ep, ok := cache.Get(role); ok {
		return ep, nil
	}
	ep, err := r.Resolve(role)
	if err != nil {
		return domain.Endpoint{}, err
	}
	cache.Put(ep)
	return ep, nil
}
