// Package netx holds the small HTTP helpers the CLI uses outside gRPC.
package netx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnauthorized is returned when the server rejects the shared secret.
var ErrUnauthorized = errors.New("unauthorized")

var httpClient = &http.Client{Timeout: 15 * time.Minute}

// DeleteWithSecret sends DELETE url carrying secret in header and returns
// the response body. Any status other than 200 is an error.
func DeleteWithSecret(ctx context.Context, url, header, secret string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(header, secret)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return b, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, fmt.Errorf("request failed: %s; body: %s", resp.Status, string(b))
	}
}
