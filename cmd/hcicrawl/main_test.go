package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(testutil.TestContext(t))
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// shareFixture lays out a small local share and its source config.
func shareFixture(t *testing.T) (dir, sourceFile string) {
	t.Helper()
	dir = testutil.TempShare(t, map[string]string{
		"share/docs/a.txt": "alpha",
		"share/b.txt":      "bravo!",
	})
	sourceFile = filepath.Join(dir, "source.yaml")
	writeFile(t, sourceFile, "name: share\ntype: cifs\nproperties:\n  backend: local\n  base_path: "+
		filepath.Join(dir, "share")+"\n")
	return dir, sourceFile
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hcicrawl v"+version)
}

func TestListShowsConnectors(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)
	for _, name := range []string{"cifs", "solr", "jsonl", "hcp"} {
		assert.Contains(t, out, name)
	}
}

func TestCrawlToJSONL(t *testing.T) {
	dir, sourceFile := shareFixture(t)
	outFile := filepath.Join(dir, "out.jsonl")
	destFile := filepath.Join(dir, "dest.yaml")
	writeFile(t, destFile, "name: out\ntype: jsonl\nproperties:\n  path: "+outFile+"\n")

	out, err := execute(t, "crawl", "--source", sourceFile, "--destination", destFile)
	require.NoError(t, err)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 2, stats["containers"])
	assert.EqualValues(t, 2, stats["records"])
	assert.EqualValues(t, 11, stats["bytes"])

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(data), "\n"))
	assert.Contains(t, string(data), `"id":"/docs/a.txt"`)
}

func TestCrawlDryRunWithMaxDepth(t *testing.T) {
	_, sourceFile := shareFixture(t)
	out, err := execute(t, "crawl", "--source", sourceFile, "--max-depth", "1", "--dry-run")
	require.NoError(t, err)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 2, stats["containers"])
	assert.EqualValues(t, 1, stats["records"])
}

func TestGetPrintsMetadata(t *testing.T) {
	_, sourceFile := shareFixture(t)
	out, err := execute(t, "get", "--source", sourceFile, "--uri", "cifs:///docs/a.txt")
	require.NoError(t, err)
	assert.Contains(t, out, `"filename": "a.txt"`)
	assert.Contains(t, out, `"content_bytes": 5`)
}

func TestValidate(t *testing.T) {
	dir, sourceFile := shareFixture(t)
	out, err := execute(t, "validate", "--source", sourceFile)
	require.NoError(t, err)
	assert.Contains(t, out, "ok:")

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "name: share\ntype: nosuch\n")
	_, err = execute(t, "validate", "--source", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nosuch")
}

func TestValidateExpandsEnvReferences(t *testing.T) {
	dir, _ := shareFixture(t)
	t.Setenv("HCI_TEST_SHARE_ROOT", filepath.Join(dir, "share"))

	sourceFile := filepath.Join(dir, "env.yaml")
	writeFile(t, sourceFile, "name: share\ntype: cifs\nproperties:\n  backend: local\n  base_path: ${HCI_TEST_SHARE_ROOT}\n")
	out, err := execute(t, "validate", "--source", sourceFile)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "share"))
}

func TestInitWritesLoadableTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "share.yaml")
	out, err := execute(t, "init", "cifs", "--name", "finance", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	cfg, err := config.LoadViper(path, "")
	require.NoError(t, err)
	assert.Equal(t, "finance", cfg.Name)
	assert.Equal(t, "cifs", cfg.Type)
	assert.Equal(t, "445", cfg.String("port", ""))
	assert.Contains(t, cfg.Properties, "host")
	assert.NotContains(t, cfg.Properties, "password")
	assert.Contains(t, cfg.Security.Credentials, "password")

	_, err = execute(t, "init", "nosuch", "--out", path)
	require.Error(t, err)
}
