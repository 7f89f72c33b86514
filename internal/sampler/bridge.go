package sampler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// BridgeSampler polls a device GPS bridge over HTTP. The bridge is whatever
// exposes the vehicle's receiver on the local network (a phone companion app,
// an OBD dongle, gpsd behind a shim).
type BridgeSampler struct {
	url    string
	client *http.Client
}

func NewBridgeSampler(url string) *BridgeSampler {
	return &BridgeSampler{
		url:    url,
		client: &http.Client{},
	}
}

func (b *BridgeSampler) RequestFix(ctx context.Context, opts Options) (Reading, error) {
	if b.url == "" {
		return Reading{}, ErrUnavailable
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	u, err := url.Parse(b.url)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if opts.HighAccuracy {
		q := u.Query()
		q.Set("highAccuracy", "1")
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Reading{}, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Reading{}, ErrTimeout
		}
		return Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusUnauthorized:
		return Reading{}, ErrPermissionDenied
	default:
		return Reading{}, fmt.Errorf("%w: bridge returned %d", ErrUnavailable, resp.StatusCode)
	}

	var reading Reading
	if err := json.NewDecoder(resp.Body).Decode(&reading); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now()
	}
	return reading, nil
}
