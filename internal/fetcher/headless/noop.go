package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// ErrHeadlessDisabled is returned by Noop.
var ErrHeadlessDisabled = errors.New("headless fetcher not configured")

// Noop stands in when headless rendering is disabled; analysis then scores the probe body.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns an error since this is a stub implementation.
func (Noop) Fetch(_ context.Context, _ lead.FetchRequest) (lead.FetchResponse, error) {
	return lead.FetchResponse{}, ErrHeadlessDisabled
}
