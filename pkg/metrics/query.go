package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// StageTotals is the aggregated view of one agent type's consumption, as
// scraped into a Prometheus server.
type StageTotals struct {
	AgentType        string  `json:"agent_type"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
}

// QueryService queries aggregated pipeline metrics from a Prometheus server
// that scrapes this process.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a metrics query service against prometheusURL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

func (q *QueryService) sumQuery(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// StageTotalsFor aggregates token and cost totals for one agent type across
// every run the server has scraped.
func (q *QueryService) StageTotalsFor(ctx context.Context, agentType string) (*StageTotals, error) {
	totals := &StageTotals{AgentType: agentType}

	prompt, err := q.sumQuery(ctx, fmt.Sprintf(`sum(pipeline_tokens_total{agent_type=%q, type="prompt"})`, agentType))
	if err != nil {
		return nil, err
	}
	totals.PromptTokens = int64(prompt)

	completion, err := q.sumQuery(ctx, fmt.Sprintf(`sum(pipeline_tokens_total{agent_type=%q, type="completion"})`, agentType))
	if err != nil {
		return nil, err
	}
	totals.CompletionTokens = int64(completion)
	totals.TotalTokens = totals.PromptTokens + totals.CompletionTokens

	cost, err := q.sumQuery(ctx, fmt.Sprintf(`sum(pipeline_costs_total{agent_type=%q})`, agentType))
	if err != nil {
		return nil, err
	}
	totals.TotalCostUSD = cost

	return totals, nil
}

// RunCounts returns the number of runs by terminal status.
func (q *QueryService) RunCounts(ctx context.Context) (map[string]int64, error) {
	result, _, err := q.queryAPI.Query(ctx, `sum by (status) (pipeline_runs_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query run counts: %w", err)
	}

	counts := make(map[string]int64)
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			if status, ok := sample.Metric["status"]; ok {
				counts[string(status)] = int64(sample.Value)
			}
		}
	}
	return counts, nil
}
