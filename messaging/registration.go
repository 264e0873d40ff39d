package messaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Announcement is the identity sent to the cloud registration endpoint.
type Announcement struct {
	CloudUID string
	Serial   string
	Name     string
	Type     string
	Address  string
}

// Form encodes the announcement with the field names the endpoint expects.
func (a Announcement) Form() url.Values {
	v := url.Values{}
	v.Set("uid", a.CloudUID)
	v.Set("serial", a.Serial)
	v.Set("name", a.Name)
	v.Set("type", a.Type)
	v.Set("address", a.Address)
	return v
}

// Registrar announces the device to the cloud.
type Registrar struct {
	url    string
	client *http.Client
}

// NewRegistrar creates a registrar posting to endpoint.
func NewRegistrar(endpoint string, timeout time.Duration) *Registrar {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Registrar{url: endpoint, client: &http.Client{Timeout: timeout}}
}

// Register issues the single form-encoded registration request and returns the
// HTTP status code. A transport failure returns an error and status 0.
func (r *Registrar) Register(ctx context.Context, a Announcement) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, strings.NewReader(a.Form().Encode()))
	if err != nil {
		return 0, fmt.Errorf("registration: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("registration: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
