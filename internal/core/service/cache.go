package service

import "github.com/berfenger/exportlimit/internal/core/domain"

// EndpointCache keeps resolved endpoints until they fail.
type EndpointCache struct {
	endpoints map[domain.Role]domain.Endpoint
}

func NewEndpointCache() *EndpointCache {
	return &EndpointCache{
		endpoints: map[domain.Role]domain.Endpoint{},
	}
}

func (c *EndpointCache) Get(role domain.Role) (domain.Endpoint, bool) {
	ep, ok := c.endpoints[role]
	return ep, ok
}

func (c *EndpointCache) Put(ep domain.Endpoint) {
	c.endpoints[ep.Role] = ep
}

func (c *EndpointCache) Evict(role domain.Role) {
	delete(c.endpoints, role)
}

func (c *EndpointCache) Len() int {
	return len(c.endpoints)
}
