package embedding

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped gateway.
type RateLimited struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewRateLimited wraps g so it is called at most rps times per second.
// A non-positive rps returns g unchanged.
func NewRateLimited(g Gateway, rps float64, burst int) Gateway {
	if rps <= 0 {
		return g
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: g, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return r.next.EmbedImage(ctx, img)
}

func (r *RateLimited) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return r.next.EmbedText(ctx, text)
}
