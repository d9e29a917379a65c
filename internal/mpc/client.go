package mpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ClientConfig configures the remote signer client.
type ClientConfig struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client posts sign requests to an MPC gateway. It makes exactly one attempt
// per call; retries happen at the cycle level.
type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a remote signer client.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("mpc url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{url: cfg.URL, http: httpClient, logger: logger}, nil
}

type signRequestBody struct {
	Path    string `json:"path"`
	Payload string `json:"payload"`
	KeyType string `json:"key_type"`
}

// signResponseBody accepts both the network's native shape
// (big_r/s/recovery_id) and a flattened r/s/v shape.
type signResponseBody struct {
	BigR *struct {
		AffinePoint string `json:"affine_point"`
	} `json:"big_r"`
	S          json.RawMessage `json:"s"`
	RecoveryID *int            `json:"recovery_id"`

	R string `json:"r"`
	V *int   `json:"v"`
}

// Sign implements Signer.
func (c *Client) Sign(ctx context.Context, req SignRequest) (Signature, error) {
	keyType := req.KeyType
	if keyType == "" {
		keyType = KeyTypeEcdsa
	}
	body, err := json.Marshal(signRequestBody{
		Path:    req.Path,
		Payload: hex.EncodeToString(req.Payload[:]),
		KeyType: keyType,
	})
	if err != nil {
		return Signature{}, fmt.Errorf("encode sign request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Signature{}, fmt.Errorf("build sign request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Signature{}, fmt.Errorf("request mpc signature: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Signature{}, fmt.Errorf("read mpc response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return Signature{}, fmt.Errorf("mpc signer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	c.logger.Debug("mpc signature received",
		zap.String("path", req.Path),
		zap.Duration("elapsed", time.Since(start)),
	)
	return parseSignResponse(raw)
}

func parseSignResponse(raw []byte) (Signature, error) {
	var body signResponseBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	if body.BigR != nil {
		point, err := decodeHex(body.BigR.AffinePoint)
		if err != nil || len(point) != 33 {
			return Signature{}, fmt.Errorf("%w: big_r affine point", ErrBadSignature)
		}
		var scalar struct {
			Scalar string `json:"scalar"`
		}
		if err := json.Unmarshal(body.S, &scalar); err != nil {
			return Signature{}, fmt.Errorf("%w: s scalar: %v", ErrBadSignature, err)
		}
		s, err := decodeHex(scalar.Scalar)
		if err != nil {
			return Signature{}, fmt.Errorf("%w: s scalar: %v", ErrBadSignature, err)
		}
		if body.RecoveryID == nil {
			return Signature{}, fmt.Errorf("%w: missing recovery_id", ErrBadSignature)
		}
		return normalize(point[1:], s, *body.RecoveryID)
	}

	var sHex string
	if err := json.Unmarshal(body.S, &sHex); err != nil {
		return Signature{}, fmt.Errorf("%w: s: %v", ErrBadSignature, err)
	}
	r, err := decodeHex(body.R)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: r: %v", ErrBadSignature, err)
	}
	s, err := decodeHex(sHex)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: s: %v", ErrBadSignature, err)
	}
	if body.V == nil {
		return Signature{}, fmt.Errorf("%w: missing v", ErrBadSignature)
	}
	return normalize(r, s, *body.V)
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
}
