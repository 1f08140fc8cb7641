// Package faceverifier defines the contract for the external face
// verification capability: given a probe and a reference image it judges
// whether both show the same person.
package faceverifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
)

// Request identifies the two images to compare.
type Request struct {
	ProbePath     string
	ReferencePath string
	// EnforceDetection makes the verifier fail when no face is detected.
	// Logins always send false so uncertain detections still get compared.
	EnforceDetection bool
}

// Verification is the verifier's judgement for one pair of images.
type Verification struct {
	Verified  bool
	Distance  float64
	Threshold float64
	Model     string
}

// Verifier compares two face images. An error means this single comparison
// could not be made (unreadable image, no decodable face, transport failure).
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Verification, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, req Request) (*Verification, error)

func (f VerifierFunc) Verify(ctx context.Context, req Request) (*Verification, error) {
	return f(ctx, req)
}

// ReadImage loads an image from disk for transmission.
func ReadImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("read image: %s is empty", path)
	}
	return data, nil
}

// DataURI encodes image bytes as a base64 data URI with a sniffed media type.
func DataURI(data []byte) string {
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}
