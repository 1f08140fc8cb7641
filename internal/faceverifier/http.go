package faceverifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/face-login/internal/logging"
)

const defaultModel = "VGG-Face"

// HTTPClient talks to a DeepFace-style REST API exposing POST /verify.
type HTTPClient struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient creates a client for the verifier at baseURL.
func NewHTTPClient(baseURL, model string, logger *zap.Logger) *HTTPClient {
	if model == "" {
		model = defaultModel
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
		logger:  logger.Named("faceverifier_http"),
	}
}

type verifyRequest struct {
	Img1             string `json:"img1"`
	Img2             string `json:"img2"`
	ModelName        string `json:"model_name"`
	EnforceDetection bool   `json:"enforce_detection"`
}

type verifyResponse struct {
	Verified  bool    `json:"verified"`
	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
	Model     string  `json:"model"`
	Error     string  `json:"error"`
}

// Verify implements Verifier.
func (c *HTTPClient) Verify(ctx context.Context, req Request) (*Verification, error) {
	probe, err := ReadImage(req.ProbePath)
	if err != nil {
		return nil, err
	}
	reference, err := ReadImage(req.ReferencePath)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(verifyRequest{
		Img1:             DataURI(probe),
		Img2:             DataURI(reference),
		ModelName:        c.model,
		EnforceDetection: req.EnforceDetection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		wrapped := logging.NewOperationError("faceverifier.http_verify", "", err)
		c.logger.Error("verifier call failed", zap.Error(wrapped), zap.String("reference", req.ReferencePath))
		return nil, wrapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out verifyResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &out) == nil && out.Error != "" {
			return nil, fmt.Errorf("verifier error (status %d): %s", resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("verifier error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &Verification{
		Verified:  out.Verified,
		Distance:  out.Distance,
		Threshold: out.Threshold,
		Model:     out.Model,
	}, nil
}
