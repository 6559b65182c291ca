package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"pdfrag/internal/domain"
)

// recordIDKey is the payload key holding the caller's record ID. Qdrant only
// accepts unsigned integers or UUIDs as point IDs, so every record ID is
// mapped to a name-based UUID and kept in the payload for the round trip.
const recordIDKey = "record_id"

// pointNamespace seeds the UUIDv5 point IDs.
var pointNamespace = uuid.MustParse("6f1c1c0e-58a4-4bd3-9a57-0e8f0c9f5f21")

// Storage is a REST client to Qdrant. Every index is a collection.
type Storage struct {
	url    string
	apiKey string
	client *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// PointID returns the Qdrant point ID used for a record ID.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

func distance(m domain.Metric) string {
	switch m {
	case domain.MetricDotProduct:
		return "Dot"
	case domain.MetricEuclidean:
		return "Euclid"
	default:
		return "Cosine"
	}
}

func (s *Storage) collectionURL(name string, suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, url.PathEscape(name), suffix)
}

// IndexExists reports whether the collection exists.
func (s *Storage) IndexExists(ctx context.Context, name string) (bool, error) {
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(name, ""), nil, nil)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateIndex creates a collection sized for dimension.
func (s *Storage) CreateIndex(ctx context.Context, name string, dimension int, metric domain.Metric) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": distance(metric),
		},
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL(name, ""), body, nil)
	return err
}

// DeleteIndex drops the collection.
func (s *Storage) DeleteIndex(ctx context.Context, name string) error {
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(name, ""), nil, nil)
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	return err
}

// Upsert writes records and waits for them to be applied.
func (s *Storage) Upsert(ctx context.Context, name string, records []domain.Record) error {
	points := make([]map[string]any, len(records))
	for i, r := range records {
		if r.ID == "" {
			return errors.New("record with empty id")
		}
		payload := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload[recordIDKey] = r.ID
		points[i] = map[string]any{
			"id":      PointID(r.ID),
			"vector":  r.Vector,
			"payload": payload,
		}
	}
	status, err := s.do(ctx, http.MethodPut, s.collectionURL(name, "/points?wait=true"), map[string]any{"points": points}, nil)
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	return err
}

type searchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Query searches the collection. Results arrive best first; for Euclid
// collections the score is the distance Qdrant reports.
func (s *Storage) Query(ctx context.Context, name string, vector []float32, topK int, includeMetadata bool) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp searchResponse
	status, err := s.do(ctx, http.MethodPost, s.collectionURL(name, "/points/search"), req, &resp)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	matches := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		m := domain.Match{Score: r.Score}
		if id, ok := r.Payload[recordIDKey].(string); ok {
			m.ID = id
		}
		if includeMetadata {
			m.Metadata = make(map[string]string, len(r.Payload))
			for k, v := range r.Payload {
				if k == recordIDKey {
					continue
				}
				if str, ok := v.(string); ok {
					m.Metadata[k] = str
				}
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// do sends a JSON request and decodes the response into out when given.
// The HTTP status is returned alongside any error so callers can map 404.
func (s *Storage) do(ctx context.Context, method, u string, body any, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s %s", method, u, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
