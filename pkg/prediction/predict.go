package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fieldmap/internal/geo"
	"github.com/sells-group/fieldmap/internal/raster"
)

// maxErrorBody bounds how much of a failed response body is kept as detail.
const maxErrorBody = 4096

// predictRequest is the JSON body of POST /pnc/predict.
type predictRequest struct {
	Coords [][]float64 `json:"coords"`
	Params
}

// errorPayload is the service error envelope. detail is usually a string but may be
// a validation error list.
type errorPayload struct {
	Detail json.RawMessage `json:"detail"`
}

// Predict sends the closed ring as [lon, lat] pairs and returns the validated samples.
func (c *httpClient) Predict(ctx context.Context, ring geo.Ring, params Params) (*raster.SampleSet, error) {
	if err := ring.ValidateClosed(); err != nil {
		return nil, err
	}
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(predictRequest{Coords: ring.LonLatPairs(), Params: params})
	if err != nil {
		return nil, eris.Wrap(err, "prediction: marshal request")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "prediction: rate limit")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "prediction: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log := zap.L().With(zap.String("component", "prediction"), zap.Int("vertices", len(ring)-1))
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("prediction request failed", zap.Error(err))
		return nil, &PredictionFailedError{Detail: "prediction service unreachable", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &PredictionFailedError{StatusCode: resp.StatusCode, Detail: "read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(resp.StatusCode, raw)
		log.Warn("prediction service error",
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail))
		return nil, &PredictionFailedError{StatusCode: resp.StatusCode, Detail: detail}
	}

	var samples raster.SampleSet
	if err := json.Unmarshal(raw, &samples); err != nil {
		return nil, eris.Wrap(err, "prediction: parse response")
	}
	if err := samples.Validate(); err != nil {
		return nil, err
	}

	log.Info("prediction received",
		zap.Int("samples", samples.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return &samples, nil
}

// errorDetail returns the service's detail field, else the raw body, else "HTTP <code>".
// Non-string details are returned as compact JSON.
func errorDetail(status int, raw []byte) string {
	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err == nil && len(payload.Detail) > 0 && string(payload.Detail) != "null" {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, payload.Detail); err == nil {
			return buf.String()
		}
		return string(payload.Detail)
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}
