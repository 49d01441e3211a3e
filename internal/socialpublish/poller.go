package socialpublish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PortNumber53/quote-autopost/internal/models"
)

// ContainerStates describes how one network reports container progress: the status field to
// request and which values are terminal.
type ContainerStates struct {
	Field    string
	Finished []string
	Failed   []string
}

// ContainerCheck fetches the raw status value of a container. detail is an optional
// server-supplied explanation (e.g. error_message).
type ContainerCheck func(ctx context.Context, containerID string) (status, detail string, err error)

// ContainerPoller waits for a staged media container to become publishable.
type ContainerPoller struct {
	Platform models.Platform
	Interval time.Duration
	Timeout  time.Duration
	Now      func() time.Time
}

// WaitUntilReady polls check until the container finishes, fails, or Timeout elapses.
// Check errors are treated as transient and retried until the deadline.
func (p ContainerPoller) WaitUntilReady(ctx context.Context, containerID string, states ContainerStates, check ContainerCheck) error {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	start := now()
	last := ""
	var lastErr error
	for {
		status, detail, err := check(ctx, containerID)
		if err != nil {
			lastErr = err
		} else {
			lastErr = nil
			last = strings.ToUpper(strings.TrimSpace(status))
			if containsFold(states.Finished, last) {
				return nil
			}
			if containsFold(states.Failed, last) {
				msg := fmt.Sprintf("container %s reported %s", containerID, last)
				if detail != "" {
					msg += ": " + detail
				}
				return &Error{Platform: p.Platform, Kind: KindContainer, Op: "container", Message: msg}
			}
		}

		if now().Sub(start) >= timeout {
			msg := fmt.Sprintf("container %s timed out after %s (last status %q)", containerID, timeout, last)
			if lastErr != nil {
				msg += ": " + lastErr.Error()
			}
			return &Error{Platform: p.Platform, Kind: KindTimeout, Op: "container", Message: msg, Err: lastErr}
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return &Error{Platform: p.Platform, Kind: KindTimeout, Op: "container", Message: fmt.Sprintf("container %s wait cancelled: %v", containerID, ctx.Err()), Err: ctx.Err()}
		case <-t.C:
		}
	}
}

// GraphContainerCheck reads states.Field (and error_message) from GET {base}/{id} on a Graph-style API.
func GraphContainerCheck(client *http.Client, p models.Platform, base, accessToken string, states ContainerStates) ContainerCheck {
	return func(ctx context.Context, containerID string) (string, string, error) {
		q := url.Values{}
		q.Set("fields", states.Field+",error_message")
		q.Set("access_token", accessToken)
		endpoint := strings.TrimRight(base, "/") + "/" + url.PathEscape(containerID) + "?" + q.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", "", err
		}
		body, err := Do(client, p, "container status", req, GraphError)
		if err != nil {
			return "", "", err
		}
		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err != nil {
			return "", "", fmt.Errorf("decode container status: %w", err)
		}
		status, _ := obj[states.Field].(string)
		detail, _ := obj["error_message"].(string)
		return status, detail, nil
	}
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
