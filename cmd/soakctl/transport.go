package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fenwick-quant/soakctl/pkg/connector"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

// newHTTPTransport returns a connector.Transport that encodes each Request
// as a JSON POST against baseURL+"/"+req.Verb and decodes the response body
// into the concrete type connector.Live expects for that verb. It is the
// minimum wire adapter `soakctl run --live` needs: a real exchange
// integration would replace this with its own REST/WS client, but the
// Connector contract itself is wire-agnostic (see pkg/connector/live.go),
// so any Transport satisfying it plugs in unchanged.
func newHTTPTransport(baseURL string, timeout time.Duration) connector.Transport {
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, req connector.Request) (connector.Response, error) {
		body, err := json.Marshal(req.Payload)
		if err != nil {
			return connector.Response{}, fmt.Errorf("encode request: %w", err)
		}

		url := baseURL + "/" + req.Verb
		if req.Symbol != "" {
			url += "?symbol=" + req.Symbol
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return connector.Response{}, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(httpReq)
		if err != nil {
			return connector.Response{}, fmt.Errorf("%s: %w", req.Verb, err)
		}
		defer resp.Body.Close()

		out := connector.Response{StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				out.RetryAfter = time.Duration(secs) * time.Second
			}
			return out, nil
		}
		if resp.StatusCode >= 400 {
			return out, nil
		}

		switch req.Verb {
		case "place_batch":
			var results []types.PlaceResult
			if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
				return out, fmt.Errorf("decode place_batch response: %w", err)
			}
			out.Body = results
		case "cancel_batch":
			var results []types.CancelResult
			if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
				return out, fmt.Errorf("decode cancel_batch response: %w", err)
			}
			out.Body = results
		case "stream_orderbook":
			var snap types.OrderBookSnapshot
			if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
				return out, fmt.Errorf("decode stream_orderbook response: %w", err)
			}
			out.Body = snap
		case "stream_fills":
			var fills []types.FillEvent
			if err := json.NewDecoder(resp.Body).Decode(&fills); err != nil {
				return out, fmt.Errorf("decode stream_fills response: %w", err)
			}
			out.Body = fills
		}
		return out, nil
	}
}
