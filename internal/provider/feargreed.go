package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"weekgrid/internal/ratelimit"
	"weekgrid/internal/sentiment"
	"weekgrid/internal/series"
	"weekgrid/pkg/model"
)

const fearGreedBaseURL = "https://api.alternative.me/fng/"

// DefaultSentimentLimit covers the full index history
const DefaultSentimentLimit = 2200

// FearGreedProvider fetches the Alternative.me Crypto Fear & Greed index
type FearGreedProvider struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Limiter
}

// NewFearGreedProvider creates a Fear & Greed provider
func NewFearGreedProvider() *FearGreedProvider {
	return &FearGreedProvider{
		baseURL: fearGreedBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: ratelimit.NewLimiter("feargreed", 30),
	}
}

func (p *FearGreedProvider) Name() string { return "feargreed" }

type fearGreedResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
	Metadata struct {
		Error *string `json:"error"`
	} `json:"metadata"`
}

// GetSentiment returns up to limit daily readings in ascending date order
func (p *FearGreedProvider) GetSentiment(ctx context.Context, limit int) ([]model.SentimentPoint, error) {
	if limit <= 0 {
		limit = DefaultSentimentLimit
	}
	url := fmt.Sprintf("%s?limit=%d&format=json", p.baseURL, limit)

	var data fearGreedResponse
	if err := getJSON(ctx, p.Name(), p.client, p.limiter, url, nil, &data); err != nil {
		return nil, err
	}
	if data.Metadata.Error != nil && *data.Metadata.Error != "" {
		return nil, &ProviderError{Provider: p.Name(), Err: errors.New(*data.Metadata.Error), Retryable: false}
	}

	points := make([]model.SentimentPoint, 0, len(data.Data))
	for _, d := range data.Data {
		ts, err := strconv.ParseInt(d.Timestamp, 10, 64)
		if err != nil {
			continue
		}
		v, err := strconv.Atoi(d.Value)
		if err != nil || v < 0 || v > 100 {
			continue
		}
		points = append(points, model.SentimentPoint{
			Date:           series.Day(time.Unix(ts, 0).UTC()),
			Value:          v,
			Classification: d.Classification,
		})
	}
	sentiment.Reclassify(points)

	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points, nil
}
