package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/diagraph/pkg/client"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

const promptName = "storage-investigator"

// Server adapts diagraph-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"diagraph",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		"diagraph://summary",
		"Diagnostic Graph Summary",
		mcp.WithResourceDescription("Entity, relationship and issue counts of the current investigation run"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadSummary)

	s.mcpServer.AddResource(mcp.NewResource(
		"diagraph://dump",
		"Diagnostic Graph Dump",
		mcp.WithResourceDescription("Deterministic text dump of every entity, edge and issue"),
		mcp.WithMIMEType("text/plain"),
	), s.handleReadDump)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"get_entity",
		mcp.WithDescription("Fetch one entity with its attributes, issues and adjacent relationships."),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity id in <type>:<key> form, e.g. 'pvc:default/data'")),
	), s.handleGetEntity)

	s.mcpServer.AddTool(mcp.NewTool(
		"related_entities",
		mcp.WithDescription("List entities reachable from an entity within a hop limit."),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Start entity id")),
		mcp.WithNumber("max_depth", mcp.Description("Maximum hops (default 3)")),
		mcp.WithString("direction", mcp.Description("both, outgoing or incoming (default both)")),
		mcp.WithString("labels", mcp.Description("Comma-separated relationship labels to follow")),
	), s.handleRelatedEntities)

	s.mcpServer.AddTool(mcp.NewTool(
		"shortest_path",
		mcp.WithDescription("Find the shortest chain of relationships between two entities."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source entity id")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target entity id")),
		mcp.WithString("direction", mcp.Description("outgoing (default), incoming or both")),
	), s.handleShortestPath)

	s.mcpServer.AddTool(mcp.NewTool(
		"list_issues",
		mcp.WithDescription("List detected issues, optionally filtered."),
		mcp.WithString("severity", mcp.Description("Comma-separated severities: critical, high, medium, low")),
		mcp.WithString("category", mcp.Description("Comma-separated categories")),
	), s.handleListIssues)

	s.mcpServer.AddTool(mcp.NewTool(
		"graph_summary",
		mcp.WithDescription("Counts of entities by type, issues by severity and relationships by label."),
	), s.handleGraphSummary)

	s.mcpServer.AddTool(mcp.NewTool(
		"analyze_root_causes",
		mcp.WithDescription("Rank issue-bearing entities by how likely they are the root cause."),
		mcp.WithNumber("limit", mcp.Description("Return at most this many causes (default all)")),
	), s.handleAnalyzeRootCauses)

	s.mcpServer.AddTool(mcp.NewTool(
		"generate_fix_plan",
		mcp.WithDescription("Produce an ordered remediation plan from the current root-cause ranking."),
	), s.handleGenerateFixPlan)

	s.mcpServer.AddTool(mcp.NewTool(
		"record_issue",
		mcp.WithDescription("Record an issue observed during investigation."),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Affected entity id")),
		mcp.WithString("severity", mcp.Required(), mcp.Description("critical, high, medium or low")),
		mcp.WithString("message", mcp.Required(), mcp.Description("What was observed")),
		mcp.WithString("category", mcp.Description("Issue category, e.g. 'hardware' or 'mount'")),
		mcp.WithString("evidence", mcp.Description("Raw evidence such as log lines")),
		mcp.WithString("recommended_actions", mcp.Description("Actions separated by ';'")),
	), s.handleRecordIssue)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		promptName,
		mcp.WithPromptDescription("Guides a storage-failure investigation over the diagnostic graph"),
		mcp.WithArgument("entity_id", mcp.ArgumentDescription("Entity the user reported as failing, e.g. a pod")),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadSummary(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sum, err := s.apiClient.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch summary: %w", err)
	}
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleReadDump(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	dump, err := s.apiClient.Dump(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dump: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "text/plain",
			Text:     dump,
		},
	}, nil
}

func (s *Server) handleGetEntity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "entity_id", "")
	if id == "" {
		return mcp.NewToolResultError("entity_id is required"), nil
	}
	detail, err := s.apiClient.GetEntity(ctx, graph.EntityID(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return jsonResult(detail)
}

func (s *Server) handleRelatedEntities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "entity_id", "")
	if id == "" {
		return mcp.NewToolResultError("entity_id is required"), nil
	}
	opts := client.TraversalOptions{
		Depth:     int(mcp.ParseFloat64(request, "max_depth", 0)),
		Direction: graph.Direction(mcp.ParseString(request, "direction", "")),
	}
	for _, l := range splitList(mcp.ParseString(request, "labels", ""), ",") {
		opts.Labels = append(opts.Labels, graph.RelationLabel(l))
	}

	related, err := s.apiClient.RelatedEntities(ctx, graph.EntityID(id), opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if len(related) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No entities related to %s within the hop limit.", id)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d entities related to %s:\n", len(related), id)
	for _, r := range related {
		labels := make([]string, len(r.Path))
		for i, l := range r.Path {
			labels[i] = string(l)
		}
		fmt.Fprintf(&b, "- %s (depth %d via %s)\n", r.ID, r.Depth, strings.Join(labels, " > "))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleShortestPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := mcp.ParseString(request, "source", "")
	target := mcp.ParseString(request, "target", "")
	if source == "" || target == "" {
		return mcp.NewToolResultError("source and target are required"), nil
	}
	opts := client.TraversalOptions{Direction: graph.Direction(mcp.ParseString(request, "direction", ""))}

	p, err := s.apiClient.ShortestPath(ctx, graph.EntityID(source), graph.EntityID(target), opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if !p.Found {
		return mcp.NewToolResultText(fmt.Sprintf("No path from %s to %s.", source, target)), nil
	}
	hops := make([]string, len(p.Path))
	for i, id := range p.Path {
		hops[i] = string(id)
	}
	return mcp.NewToolResultText("Path: " + strings.Join(hops, " -> ")), nil
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var filter graph.IssueFilter
	for _, sev := range splitList(mcp.ParseString(request, "severity", ""), ",") {
		filter.Severities = append(filter.Severities, graph.Severity(strings.ToLower(sev)))
	}
	filter.Categories = splitList(mcp.ParseString(request, "category", ""), ",")

	issues, err := s.apiClient.ListIssues(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return jsonResult(issues)
}

func (s *Server) handleGraphSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.apiClient.Summary(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return jsonResult(sum)
}

func (s *Server) handleAnalyzeRootCauses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(mcp.ParseFloat64(request, "limit", 0))
	causes, err := s.apiClient.RootCauses(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if len(causes) == 0 {
		return mcp.NewToolResultText("No issues recorded; nothing to rank."), nil
	}

	var b strings.Builder
	for _, c := range causes {
		fmt.Fprintf(&b, "%d. %s [%s] score=%.2f severity=%s issues=%d\n",
			c.Rank, c.EntityID, c.Tier, c.Score, c.MaxSeverity, len(c.SupportingIssues))
		for _, is := range c.SupportingIssues {
			fmt.Fprintf(&b, "   - %s: %s\n", is.Severity, is.Message)
		}
		for _, m := range c.MatchedIncidents {
			fmt.Fprintf(&b, "   ~ resembles %s (score %.2f): %s\n", m.IncidentID, m.Score, m.RootCause)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleGenerateFixPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plan, err := s.apiClient.FixPlan(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if len(plan.Steps) == 0 {
		return mcp.NewToolResultText("No remediation steps; the graph has no issues."), nil
	}

	var b strings.Builder
	for _, st := range plan.Steps {
		fmt.Fprintf(&b, "%d. %s\n   target: %s\n   why: %s\n", st.Step, st.Description, st.TargetEntity, st.Rationale)
	}
	for _, st := range plan.Superseded {
		fmt.Fprintf(&b, "(dropped) %s on %s, contradicts step %d\n", st.Description, st.TargetEntity, st.SupersededBy)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleRecordIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	is := client.Issue{
		EntityID:           graph.EntityID(mcp.ParseString(request, "entity_id", "")),
		Severity:           graph.Severity(strings.ToLower(mcp.ParseString(request, "severity", ""))),
		Category:           mcp.ParseString(request, "category", ""),
		Message:            mcp.ParseString(request, "message", ""),
		Evidence:           mcp.ParseString(request, "evidence", ""),
		RecommendedActions: splitList(mcp.ParseString(request, "recommended_actions", ""), ";"),
	}
	if is.EntityID == "" || is.Message == "" {
		return mcp.NewToolResultError("entity_id and message are required"), nil
	}

	id, err := s.apiClient.RecordIssue(ctx, is)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Recorded %s on %s.", id, is.EntityID)), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != promptName {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are investigating a storage failure using diagraph, a diagnostic knowledge graph.

Concepts:
- Entity: a pod, pvc, pv, volume group (vg), drive, node, storageclass, pool or system, identified as <type>:<key>.
- Relationship: a directed edge such as pod -uses-> pvc -bound_to-> pv -maps_to-> drive -located_on-> node.
- Issue: a problem bound to one entity with severity critical, high, medium or low.
- Incident: a historical case; entities whose issues resemble one get a ranking bonus.

Method:
1. Call graph_summary to see what was collected and whether entities are incomplete.
2. Call analyze_root_causes. Primary causes are the deepest failing dependencies in each failure domain.
3. Use related_entities and shortest_path to confirm how a primary cause reaches the reported symptom.
4. Call generate_fix_plan and present its steps in order. Never reorder steps across dependencies.
If you observe a new problem, record it with record_issue before re-running the analysis.
`
	if id := request.Params.Arguments["entity_id"]; id != "" {
		promptText += fmt.Sprintf("\nThe user reported a problem with %s. Start from it with get_entity.\n", id)
	}

	return mcp.NewGetPromptResult(
		promptName,
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
