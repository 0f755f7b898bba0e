package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/relayout/internal/api"
	"github.com/jackzampolin/relayout/internal/metrics"
	"github.com/jackzampolin/relayout/internal/svcctx"
)

// MetricsSummaryResponse is the response for GET /api/metrics.
type MetricsSummaryResponse struct {
	Enabled bool                                     `json:"enabled"`
	Overall *metrics.DetailedStats                   `json:"overall"`
	Stages  map[metrics.Stage]*metrics.DetailedStats `json:"stages"`
}

// ListMetricsResponse is the response for GET /api/metrics/recent.
type ListMetricsResponse struct {
	Metrics []metrics.Metric `json:"metrics"`
	Count   int              `json:"count"`
}

// filterFromQuery reads document_id, stage and detector query parameters.
func filterFromQuery(q url.Values) metrics.Filter {
	return metrics.Filter{
		DocumentID: q.Get("document_id"),
		Stage:      metrics.Stage(q.Get("stage")),
		Detector:   q.Get("detector"),
	}
}

type metricsFlags struct {
	documentID string
	stage      string
	detector   string
}

func (f *metricsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.documentID, "document", "", "Filter by document ID")
	cmd.Flags().StringVar(&f.stage, "stage", "", "Filter by stage: detect, compare or reclassify")
	cmd.Flags().StringVar(&f.detector, "detector", "", "Filter by detector name")
}

func (f *metricsFlags) query() url.Values {
	q := url.Values{}
	if f.documentID != "" {
		q.Set("document_id", f.documentID)
	}
	if f.stage != "" {
		q.Set("stage", f.stage)
	}
	if f.detector != "" {
		q.Set("detector", f.detector)
	}
	return q
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// MetricsSummaryEndpoint handles GET /api/metrics.
type MetricsSummaryEndpoint struct{}

var _ api.Endpoint = (*MetricsSummaryEndpoint)(nil)

func (e *MetricsSummaryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/metrics", e.handler
}

func (e *MetricsSummaryEndpoint) RequiresInit() bool { return true }

func (e *MetricsSummaryEndpoint) Group() string { return "metrics" }

// handler godoc
//
//	@Summary		Operation metrics summary
//	@Description	Counts, outputs and latency percentiles of recent layout operations, overall and per stage
//	@Tags			metrics
//	@Produce		json
//	@Param			document_id	query		string	false	"Document ID"
//	@Param			stage		query		string	false	"detect, compare or reclassify"
//	@Param			detector	query		string	false	"Detector name"
//	@Success		200			{object}	MetricsSummaryResponse
//	@Router			/api/metrics [get]
func (e *MetricsSummaryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	rec := svcctx.LayoutFrom(r.Context()).Metrics()
	f := filterFromQuery(r.URL.Query())
	writeJSON(w, http.StatusOK, MetricsSummaryResponse{
		Enabled: rec != nil,
		Overall: rec.Stats(f),
		Stages:  rec.StageStats(f),
	})
}

func (e *MetricsSummaryEndpoint) Command(getServerURL func() string) *cobra.Command {
	var flags metricsFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize recent layout operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp MetricsSummaryResponse
			if err := client.Get(cmd.Context(), withQuery("/api/metrics", flags.query()), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	flags.register(cmd)
	return cmd
}

// ListMetricsEndpoint handles GET /api/metrics/recent.
type ListMetricsEndpoint struct{}

var _ api.Endpoint = (*ListMetricsEndpoint)(nil)

func (e *ListMetricsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/metrics/recent", e.handler
}

func (e *ListMetricsEndpoint) RequiresInit() bool { return true }

func (e *ListMetricsEndpoint) Group() string { return "metrics" }

// handler godoc
//
//	@Summary		List recent operations
//	@Description	Most recent layout operations, newest first
//	@Tags			metrics
//	@Produce		json
//	@Param			document_id	query		string	false	"Document ID"
//	@Param			stage		query		string	false	"detect, compare or reclassify"
//	@Param			detector	query		string	false	"Detector name"
//	@Param			limit		query		int		false	"Maximum results (default 50)"
//	@Success		200			{object}	ListMetricsResponse
//	@Failure		400			{object}	ErrorResponse
//	@Router			/api/metrics/recent [get]
func (e *ListMetricsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	rec := svcctx.LayoutFrom(r.Context()).Metrics()
	list := rec.List(filterFromQuery(r.URL.Query()), limit)
	writeJSON(w, http.StatusOK, ListMetricsResponse{Metrics: list, Count: len(list)})
}

func (e *ListMetricsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var flags metricsFlags
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent layout operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := flags.query()
			q.Set("limit", fmt.Sprintf("%d", limit))

			client := api.NewClient(getServerURL())
			var resp ListMetricsResponse
			if err := client.Get(cmd.Context(), withQuery("/api/metrics/recent", q), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results (0 for all)")
	return cmd
}
