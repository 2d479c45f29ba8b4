package service

import (
	"errors"
	"fmt"
)

// Attempt is one entry of an ordered attempt chain.
type Attempt[T any] struct {
	Name string
	Run  func() (T, error)
}

// Chain runs its attempts in declaration order and stops at the first success.
// It backs both device discovery and the actuation fallback.
type Chain[T any] struct {
	Attempts []Attempt[T]
	// Exhausted is wrapped in the error returned when every attempt failed
	Exhausted error
	OnFailure func(name string, err error)
}

func (c Chain[T]) Run() (T, string, error) {
	var zero T
	if len(c.Attempts) == 0 {
		return zero, "", fmt.Errorf("%w: nothing to try", c.Exhausted)
	}
	var errs []error
	for _, attempt := range c.Attempts {
		value, err := attempt.Run()
		if err == nil {
			return value, attempt.Name, nil
		}
		if c.OnFailure != nil {
			c.OnFailure(attempt.Name, err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", attempt.Name, err))
	}
	return zero, "", fmt.Errorf("%w: %w", c.Exhausted, errors.Join(errs...))
}
