package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/exportlimit/internal/core/domain"
	"github.com/berfenger/exportlimit/internal/core/port"

	"go.uber.org/zap"
)

type TelemetryReader struct {
	bus      port.Bus
	resolver *Resolver
	roles    []domain.Role
	now      func() time.Time
	logger   *zap.Logger
}

// NewTelemetryReader builds a reader whose site reading is the sum of roles.
func NewTelemetryReader(bus port.Bus, resolver *Resolver, roles []domain.Role, logger *zap.Logger) *TelemetryReader {
	return &TelemetryReader{
		bus:      bus,
		resolver: resolver,
		roles:    roles,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "telemetry")),
	}
}

// ReadPower reads the normalized power of role. A failing endpoint is evicted
// and resolved again once before giving up.
func (t *TelemetryReader) ReadPower(cache *EndpointCache, role domain.Role) (domain.PowerReading, error) {
	var lastErr error
	for try := 0; try < 2; try++ {
		ep, err := t.resolver.Endpoint(cache, role)
		if err != nil {
			return domain.PowerReading{}, fmt.Errorf("%w: %w", domain.ErrReadUnavailable, err)
		}
		value, err := t.bus.Read(ep.ServiceID, ep.ObjectPath)
		if err == nil {
			return domain.PowerReading{
				Watts:     ep.Normalize(value),
				Source:    []domain.Endpoint{ep},
				Timestamp: t.now(),
			}, nil
		}
		t.logger.Warn("telemetry: endpoint stopped answering, evicting", zap.String("role", string(role)),
			zap.String("service", ep.ServiceID), zap.Error(err))
		cache.Evict(role)
		lastErr = err
	}
	return domain.PowerReading{}, fmt.Errorf("%w: %s: %w", domain.ErrReadUnavailable, role, lastErr)
}

// ReadSite sums the readings of every configured role. Any failing role fails the whole reading.
func (t *TelemetryReader) ReadSite(cache *EndpointCache) (domain.PowerReading, error) {
	if len(t.roles) == 0 {
		return domain.PowerReading{}, fmt.Errorf("%w: no telemetry roles", domain.ErrReadUnavailable)
	}
	site := domain.PowerReading{Timestamp: t.now()}
	var errs []error
	for _, role := range t.roles {
		reading, err := t.ReadPower(cache, role)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		site.Watts += reading.Watts
		site.Source = append(site.Source, reading.Source...)
	}
	if len(errs) > 0 {
		return domain.PowerReading{}, errors.Join(errs...)
	}
	t.logger.Debug("telemetry: site reading", zap.Float64("watts", site.Watts), zap.Int("sources", len(site.Source)))
	return site, nil
}
