package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/diagraph/pkg/api"
	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/store"
)

func newDaemon(t *testing.T) (*api.Server, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	st, err := store.NewStore(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := api.NewServer("", api.WithReportStore(st))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts.URL
}

func execute(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--api", apiURL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_Investigation(t *testing.T) {
	daemon, url := newDaemon(t)

	out, err := execute(t, url, "entity", "upsert", "drive", "node-1/sdb", "-a", "smart_passed=false", "-a", "temp=41")
	require.NoError(t, err)
	assert.Contains(t, out, "drive:node-1/sdb")

	for _, rel := range [][]string{
		{"pod:shop/db-0", "uses", "pvc:shop/data"},
		{"pvc:shop/data", "bound_to", "pv:pv-1"},
		{"pv:pv-1", "maps_to", "drive:node-1/sdb"},
	} {
		_, err := execute(t, url, append([]string{"relate"}, rel...)...)
		require.NoError(t, err)
	}

	_, err = execute(t, url, "issue", "record", "drive:node-1/sdb",
		"-s", "critical", "-c", "hardware", "-m", "medium errors on sdb", "--action", "Replace drive node-1/sdb")
	require.NoError(t, err)

	e, ok := daemon.CurrentRun().Graph.GetEntity("drive:node-1/sdb")
	require.True(t, ok)
	temp, _ := e.Attributes["temp"].AsInt()
	assert.Equal(t, int64(41), temp)
	passed, _ := e.Attributes["smart_passed"].AsBool()
	assert.False(t, passed)

	out, err = execute(t, url, "-o", "json", "rootcauses")
	require.NoError(t, err)
	var causes []engine.RankedCause
	require.NoError(t, json.Unmarshal([]byte(out), &causes))
	require.NotEmpty(t, causes)
	assert.Equal(t, "drive:node-1/sdb", string(causes[0].EntityID))

	out, err = execute(t, url, "fixplan")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Replace drive node-1/sdb")

	out, err = execute(t, url, "path", "pod:shop/db-0", "drive:node-1/sdb")
	require.NoError(t, err)
	assert.Contains(t, out, "pod:shop/db-0 -> pvc:shop/data -> pv:pv-1 -> drive:node-1/sdb")

	out, err = execute(t, url, "path", "drive:node-1/sdb", "pod:shop/db-0")
	require.NoError(t, err)
	assert.Contains(t, out, "no path")

	out, err = execute(t, url, "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "pv:pv-1 -[maps_to]-> drive:node-1/sdb")

	out, err = execute(t, url, "export", "issues")
	require.NoError(t, err)
	assert.Contains(t, out, "medium errors on sdb")

	out, err = execute(t, url, "-o", "json", "report", "archive", "--note", "cli")
	require.NoError(t, err)
	var rep store.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "cli", rep.Note)
	assert.Equal(t, "drive:node-1/sdb", string(rep.PrimaryCause()))

	out, err = execute(t, url, "report", "list")
	require.NoError(t, err)
	assert.Contains(t, out, rep.ID)
}

func TestCLI_Errors(t *testing.T) {
	_, url := newDaemon(t)

	_, err := execute(t, url, "entity", "get", "pod:ghost")
	assert.ErrorContains(t, err, "entity_not_found")

	_, err = execute(t, url, "entity", "upsert", "toaster", "t1")
	assert.ErrorContains(t, err, "unknown_entity_type")

	_, err = execute(t, url, "entity", "upsert", "pod", "a/b", "-a", "novalue")
	assert.ErrorContains(t, err, "expected key=value")

	_, err = execute(t, url, "related", "pod:a", "--direction", "sideways")
	assert.Error(t, err)

	_, err = execute(t, url, "-o", "yaml", "summary")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestCLI_Facts(t *testing.T) {
	daemon, url := newDaemon(t)
	path := filepath.Join(t.TempDir(), "probe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`probe: csi
facts:
  - {kind: relationship, source: "pv:pv-1", target: "vg:n1/vg0", label: maps_to}
  - {kind: entity, type: spaceship, key: x}
`), 0o644))

	out, err := execute(t, url, "facts", path)
	assert.ErrorContains(t, err, "1 facts rejected")
	assert.Contains(t, out, "applied 1 of 2 facts")
	assert.Equal(t, 1, daemon.CurrentRun().Graph.Summary().EdgeCount)
}

func TestCLI_Replay(t *testing.T) {
	_, url := newDaemon(t)

	out, err := execute(t, url, "replay", filepath.Join("..", "..", "examples", "scenarios", "drive-failure.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "scenario drive-failure")
	assert.NotContains(t, out, "FAIL")
}

func TestParseAttrs(t *testing.T) {
	attrs, err := parseAttrs([]string{"n=3", "f=0.5", "b=true", "s=hello", "e="})
	require.NoError(t, err)
	assert.Equal(t, int64(3), attrs["n"])
	assert.Equal(t, 0.5, attrs["f"])
	assert.Equal(t, true, attrs["b"])
	assert.Equal(t, "hello", attrs["s"])
	assert.Equal(t, "", attrs["e"])

	attrs, err = parseAttrs(nil)
	require.NoError(t, err)
	assert.Nil(t, attrs)

	_, err = parseAttrs([]string{"=x"})
	assert.Error(t, err)
}
