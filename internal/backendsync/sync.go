package backendsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ShivangSharma3/bus-tracking-system/internal/model"
)

const pushTimeout = 5 * time.Second

// Sync pushes enhanced fixes to the backend, best effort. The local store
// stays the source of truth; a dead backend only costs the remote copy.
type Sync struct {
	baseURL string
	token   string
	client  *http.Client
}

func New(baseURL, token string) *Sync {
	return &Sync{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: pushTimeout},
	}
}

// Push sends the fix in the background. Failures are logged and swallowed;
// the caller's sampling loop is never blocked or failed by the backend.
func (s *Sync) Push(fix model.Fix) {
	if s.baseURL == "" {
		return
	}
	go func() {
		if err := s.push(fix); err != nil {
			log.Printf("backend sync failed for bus %s: %v", fix.BusID, err)
		}
	}()
}

func (s *Sync) push(fix model.Fix) error {
	payload, err := json.Marshal(fix)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/location/update-location/%s", s.baseURL, fix.BusID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}
