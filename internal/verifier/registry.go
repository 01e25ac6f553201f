package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nabr/verification/internal/circuitbreaker"
)

// RegistryChecker validates credential tags against an external credential
// registry over HTTP. With no registry URL configured it passes stored tags
// through unchanged, which keeps local and test runs self-contained. A
// circuit breaker shields the registry: while it is open, Check fails fast
// and the caller falls back to stored tags.
type RegistryChecker struct {
	url     string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *log.Logger
}

func NewRegistryChecker(url string) *RegistryChecker {
	return &RegistryChecker{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig("credential-registry")),
		logger:  log.New(log.Writer(), "[CREDREG] ", log.LstdFlags),
	}
}

type registryRequest struct {
	PrincipalID string   `json:"principal_id"`
	Credentials []string `json:"credentials"`
}

type registryResponse struct {
	Valid []string `json:"valid"`
}

// Check returns the subset of credentials the registry still considers
// valid. Transport and decode failures are returned to the caller, which
// falls back to the stored tags.
func (r *RegistryChecker) Check(ctx context.Context, principalID string, credentials []string) ([]string, error) {
	if r.url == "" {
		return credentials, nil
	}

	var valid []string
	err := r.breaker.Do(func() error {
		var callErr error
		valid, callErr = r.check(ctx, principalID, credentials)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	r.logger.Printf("checked %d credentials for %s, %d valid",
		len(credentials), principalID, len(valid))
	return valid, nil
}

func (r *RegistryChecker) check(ctx context.Context, principalID string, credentials []string) ([]string, error) {
	body, err := json.Marshal(registryRequest{PrincipalID: principalID, Credentials: credentials})
	if err != nil {
		return nil, fmt.Errorf("encode registry request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/v1/credentials/check", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credential registry returned %d", resp.StatusCode)
	}
	var decoded registryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}
	return decoded.Valid, nil
}
