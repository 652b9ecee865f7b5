package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

// Client is the diagraph daemon SDK client.
type Client struct {
	endpoint string
	http     *http.Client
	backoff  Backoff
	retries  int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetry sets how often reads are retried and the wait between tries.
func WithRetry(retries int, b Backoff) Option {
	return func(c *Client) {
		c.retries = retries
		c.backoff = b
	}
}

// NewClient creates a new diagraph client.
// endpoint defaults to "http://127.0.0.1:8090" if empty.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8090"
	}
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff: DefaultBackoff(),
		retries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the daemon base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	err := c.get(ctx, "/v1/health", nil, &status)
	return status, err
}

// StartRun discards the daemon's current graph and starts a new run.
func (c *Client) StartRun(ctx context.Context) (Run, error) {
	var run Run
	err := c.send(ctx, http.MethodPost, "/v1/runs", nil, &run)
	return run, err
}

// CurrentRun describes the run in progress.
func (c *Client) CurrentRun(ctx context.Context) (Run, error) {
	var run Run
	err := c.get(ctx, "/v1/runs/current", nil, &run)
	return run, err
}

// UpsertEntity adds or merges an entity and returns its id.
func (c *Client) UpsertEntity(ctx context.Context, e Entity) (graph.EntityID, error) {
	var resp struct {
		ID graph.EntityID `json:"id"`
	}
	err := c.send(ctx, http.MethodPost, "/v1/entities", e, &resp)
	return resp.ID, err
}

// GetEntity returns an entity with its issues and edges.
func (c *Client) GetEntity(ctx context.Context, id graph.EntityID) (EntityDetail, error) {
	var detail EntityDetail
	err := c.get(ctx, "/v1/entities/"+string(id), nil, &detail)
	return detail, err
}

// ListEntities lists entities, all of them when t is empty.
func (c *Client) ListEntities(ctx context.Context, t graph.EntityType) ([]graph.Entity, error) {
	q := url.Values{}
	if t != "" {
		q.Set("type", string(t))
	}
	var entities []graph.Entity
	err := c.get(ctx, "/v1/entities", q, &entities)
	return entities, err
}

// AddRelationship records a directed edge.
func (c *Client) AddRelationship(ctx context.Context, r Relationship) error {
	return c.send(ctx, http.MethodPost, "/v1/relationships", r, nil)
}

// ListRelationships lists edges, optionally only those with the given labels.
func (c *Client) ListRelationships(ctx context.Context, labels ...graph.RelationLabel) ([]graph.Relationship, error) {
	q := url.Values{}
	for _, l := range labels {
		q.Add("label", string(l))
	}
	var rels []graph.Relationship
	err := c.get(ctx, "/v1/relationships", q, &rels)
	return rels, err
}

// RecordIssue records an issue and returns its id.
func (c *Client) RecordIssue(ctx context.Context, is Issue) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.send(ctx, http.MethodPost, "/v1/issues", is, &resp)
	return resp.ID, err
}

// ListIssues returns the issue ledger filtered by severity and category.
func (c *Client) ListIssues(ctx context.Context, filter graph.IssueFilter) ([]graph.Issue, error) {
	q := url.Values{}
	for _, s := range filter.Severities {
		q.Add("severity", string(s))
	}
	for _, cat := range filter.Categories {
		q.Add("category", cat)
	}
	var issues []graph.Issue
	err := c.get(ctx, "/v1/issues", q, &issues)
	return issues, err
}

// ApplyFacts sends one probe's batch of facts. A batch with rejected facts
// returns the partial result together with an error.
func (c *Client) ApplyFacts(ctx context.Context, probe string, facts []graph.Fact) (ProbeResult, error) {
	var res ProbeResult
	body := struct {
		Probe string       `json:"probe,omitempty"`
		Facts []graph.Fact `json:"facts"`
	}{probe, facts}
	err := c.send(ctx, http.MethodPost, "/v1/facts", body, &res)
	return res, err
}

// LoadIncidents adds historical incident records to the current run.
func (c *Client) LoadIncidents(ctx context.Context, incidents []graph.Incident) (IncidentLoad, error) {
	var res IncidentLoad
	body := struct {
		Incidents []graph.Incident `json:"incidents"`
	}{incidents}
	err := c.send(ctx, http.MethodPost, "/v1/incidents", body, &res)
	return res, err
}

// ListIncidents returns the current run's historical incidents.
func (c *Client) ListIncidents(ctx context.Context) ([]graph.Incident, error) {
	var incidents []graph.Incident
	err := c.get(ctx, "/v1/incidents", nil, &incidents)
	return incidents, err
}

// LinkIncidents asks the daemon to add matches edges and returns how many
// were added.
func (c *Client) LinkIncidents(ctx context.Context) (int, error) {
	var resp struct {
		Linked int `json:"linked"`
	}
	err := c.send(ctx, http.MethodPost, "/v1/incidents/link", nil, &resp)
	return resp.Linked, err
}

// RelatedEntities lists entities reachable from id.
func (c *Client) RelatedEntities(ctx context.Context, id graph.EntityID, opts TraversalOptions) ([]graph.Related, error) {
	q := opts.query()
	q.Set("id", string(id))
	var resp struct {
		Related []graph.Related `json:"related"`
	}
	err := c.get(ctx, "/v1/related", q, &resp)
	return resp.Related, err
}

// ShortestPath finds the shortest path between two entities.
func (c *Client) ShortestPath(ctx context.Context, source, target graph.EntityID, opts TraversalOptions) (Path, error) {
	q := opts.query()
	q.Set("source", string(source))
	q.Set("target", string(target))
	var p Path
	err := c.get(ctx, "/v1/path", q, &p)
	return p, err
}

// Summary returns aggregate graph counts.
func (c *Client) Summary(ctx context.Context) (graph.Summary, error) {
	var s graph.Summary
	err := c.get(ctx, "/v1/summary", nil, &s)
	return s, err
}

// RootCauses ranks likely root causes; limit 0 returns all.
func (c *Client) RootCauses(ctx context.Context, limit int) ([]RankedCause, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Causes []RankedCause `json:"causes"`
	}
	err := c.get(ctx, "/v1/rootcauses", q, &resp)
	return resp.Causes, err
}

// FixPlan returns the ordered remediation plan.
func (c *Client) FixPlan(ctx context.Context) (Plan, error) {
	var resp struct {
		Plan Plan `json:"plan"`
	}
	err := c.get(ctx, "/v1/fixplan", nil, &resp)
	return resp.Plan, err
}

// Dump returns the deterministic text dump.
func (c *Client) Dump(ctx context.Context) (string, error) {
	return c.getText(ctx, "/v1/dump", nil)
}

// Snapshot returns the structured dump.
func (c *Client) Snapshot(ctx context.Context) (graph.Snapshot, error) {
	var snap graph.Snapshot
	err := c.get(ctx, "/v1/dump", url.Values{"format": {"json"}}, &snap)
	return snap, err
}

// ArchiveReport stores the current investigation as a report.
func (c *Client) ArchiveReport(ctx context.Context, note string) (Report, error) {
	var rep Report
	body := struct {
		Note string `json:"note,omitempty"`
	}{note}
	err := c.send(ctx, http.MethodPost, "/v1/reports", body, &rep)
	return rep, err
}

// ListReports lists archived reports, newest first.
func (c *Client) ListReports(ctx context.Context, runID string, limit int) ([]ReportMeta, error) {
	q := url.Values{}
	if runID != "" {
		q.Set("run_id", runID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var list []ReportMeta
	err := c.get(ctx, "/v1/reports", q, &list)
	return list, err
}

// GetReport fetches one archived report.
func (c *Client) GetReport(ctx context.Context, id string) (Report, error) {
	var rep Report
	err := c.get(ctx, "/v1/reports/"+url.PathEscape(id), nil, &rep)
	return rep, err
}

// ReportDump returns the text dump archived with a report.
func (c *Client) ReportDump(ctx context.Context, id string) (string, error) {
	return c.getText(ctx, "/v1/reports/"+url.PathEscape(id)+"/dump", nil)
}

// Export returns a CSV export ("issues", "fixplan" or "rootcauses").
func (c *Client) Export(ctx context.Context, reportType string) (string, error) {
	return c.getText(ctx, "/v1/export", url.Values{"type": {reportType}})
}

func (o TraversalOptions) query() url.Values {
	q := url.Values{}
	if o.Depth != 0 {
		q.Set("depth", strconv.Itoa(o.Depth))
	}
	if o.Direction != "" {
		q.Set("direction", string(o.Direction))
	}
	for _, l := range o.Labels {
		q.Add("label", string(l))
	}
	return q
}

// get performs an idempotent read, retrying transport failures and 5xx
// responses with backoff.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return c.retry(ctx, func() error {
		body, err := c.roundTrip(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", path, err)
		}
		return nil
	})
}

func (c *Client) getText(ctx context.Context, path string, q url.Values) (string, error) {
	var text string
	err := c.retry(ctx, func() error {
		body, err := c.roundTrip(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return err
		}
		text = string(body)
		return nil
	})
	return text, err
}

// send performs a single non-idempotent write. The response body is
// decoded into out even on a 4xx, so partial results survive.
func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	body, err := c.roundTrip(ctx, method, path, nil, payload)
	if out != nil && len(body) > 0 {
		if derr := json.Unmarshal(body, out); derr != nil && err == nil {
			return fmt.Errorf("failed to decode %s response: %w", path, derr)
		}
	}
	return err
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil || !retryable(err) || attempt >= c.retries {
			return err
		}
		if perr := pause(ctx, c.backoff.Delay(attempt)); perr != nil {
			return perr
		}
	}
}

// roundTrip returns the response body; non-2xx statuses become *APIError.
func (c *Client) roundTrip(ctx context.Context, method, path string, q url.Values, payload []byte) ([]byte, error) {
	u := c.endpoint + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return body, apiErr
	}
	return body, nil
}
