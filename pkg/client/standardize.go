package client

import (
	"context"

	"github.com/turtacn/MolPrep-Engine/pkg/errors"
)

// StandardizeRequest is the payload for a single standardization call.
type StandardizeRequest struct {
	Smiles string `json:"smiles"`
}

// StandardizeResponse is the service's normalized answer.
type StandardizeResponse struct {
	Smiles string `json:"smiles"`
	Source string `json:"source,omitempty"`
}

// BatchStandardizeRequest is the payload for a batch standardization call.
type BatchStandardizeRequest struct {
	Smiles []string `json:"smiles"`
}

// BatchStandardizeResponse carries one entry per requested notation,
// position-aligned with the request.
type BatchStandardizeResponse struct {
	Results []StandardizeResponse `json:"results"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Standardize submits one notation and returns the service's normalized
// form.  It satisfies the molecule domain's Standardizer port.
func (c *Client) Standardize(ctx context.Context, notation string) (string, error) {
	if notation == "" {
		return "", errors.New(errors.ErrCodeValidation, "client: notation is required")
	}

	var resp StandardizeResponse
	if err := c.post(ctx, "/v1/standardize", &StandardizeRequest{Smiles: notation}, &resp); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStandardizationFailed, "standardization request failed")
	}
	if resp.Smiles == "" {
		return "", errors.New(errors.ErrCodeStandardizationFailed, "service returned an empty notation")
	}
	return resp.Smiles, nil
}

// StandardizeBatch submits multiple notations in one call.  The result is
// position-aligned with the input.
func (c *Client) StandardizeBatch(ctx context.Context, notations []string) ([]string, error) {
	if len(notations) == 0 {
		return nil, nil
	}

	var resp BatchStandardizeResponse
	if err := c.post(ctx, "/v1/standardize/batch", &BatchStandardizeRequest{Smiles: notations}, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStandardizationFailed, "batch standardization request failed")
	}
	if len(resp.Results) != len(notations) {
		return nil, errors.New(errors.ErrCodeStandardizationFailed, "service returned a misaligned batch result")
	}

	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.Smiles
	}
	return out, nil
}

// Health checks service liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/v1/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
