package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultSerperURL = "https://google.serper.dev/search"

// Searcher returns a short plain-text digest of web results for query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

type Serper struct {
	apiKey  string
	url     string
	results int
	client  *http.Client
}

type SerperOption func(*Serper)

func WithURL(u string) SerperOption { return func(s *Serper) { s.url = u } }

func WithResults(n int) SerperOption { return func(s *Serper) { s.results = n } }

func WithHTTPClient(c *http.Client) SerperOption { return func(s *Serper) { s.client = c } }

func NewSerper(apiKey string, opts ...SerperOption) *Serper {
	s := &Serper{
		apiKey:  apiKey,
		url:     DefaultSerperURL,
		results: 5,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperResponse struct {
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox"`
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *Serper) Search(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(serperRequest{Q: query, Num: s.results})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("serper request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("serper: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("serper: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("serper decode: %w", err)
	}

	var b strings.Builder
	if ab := out.AnswerBox; ab != nil {
		answer := ab.Answer
		if answer == "" {
			answer = ab.Snippet
		}
		if answer != "" {
			fmt.Fprintf(&b, "Answer: %s\n", answer)
		}
	}
	for i, r := range out.Organic {
		if s.results > 0 && i >= s.results {
			break
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.Link, r.Snippet)
	}
	return b.String(), nil
}
