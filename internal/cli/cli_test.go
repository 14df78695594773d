package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MEMORYD_CONFIG", "")
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("STORAGE_LOCAL_DIR", filepath.Join(dir, "data"))
	t.Setenv("EMBEDDING_PROVIDER", "deterministic")
	t.Setenv("ROLLOVER_TIMEZONE", "UTC")
	t.Setenv("AGENT_NAME", "Ava")
	t.Setenv("OTHER_NAME", "Maggie")
	t.Setenv("LOG_LEVEL", "error")
}

// run executes the root command. Flags persist between executions, so every
// call passes the format explicitly.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetIn(strings.NewReader(""))
	RootCmd.SetArgs(append([]string{"-f", "json"}, args...))
	err := RootCmd.Execute()
	return out.String(), err
}

func TestConfigValidate(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "config", "validate")
	require.NoError(t, err)
	assert.JSONEq(t, `{"valid": true}`, out)
}

func TestConfigValidate_SameNames(t *testing.T) {
	setupEnv(t)
	t.Setenv("OTHER_NAME", "Ava")
	_, err := run(t, "config", "validate")
	assert.Error(t, err)
}

func TestRecordAndRecall(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "record", "--speaker", "Maggie", "I", "love", "the", "beach")
	require.NoError(t, err)
	var rec recordOutput
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.NotZero(t, rec.ID)

	out, err = run(t, "recall", "-k", "3", "I love the beach")
	require.NoError(t, err)
	var res struct {
		Text  string            `json:"text"`
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Contains(t, res.Text, "I love the beach")
	assert.Len(t, res.Items, 1)
}

func TestRecord_RequiresText(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "record", "--speaker", "Maggie")
	assert.Error(t, err)
}

func TestKnowledgeBase(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "kb", "create", "--title", "Beach", "--tags", "beach, sand", "Maggie loves the beach.")
	require.NoError(t, err)
	var created struct {
		ID   string   `json:"id"`
		Keys []string `json:"keys"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.True(t, strings.HasPrefix(created.ID, "kbe"), created.ID)
	assert.Equal(t, []string{"beach", "sand"}, created.Keys)

	out, err = run(t, "kb", "get", "Beach")
	require.NoError(t, err)
	assert.Contains(t, out, "Maggie loves the beach.")

	out, err = run(t, "kb", "search", "--limit", "5", "sand")
	require.NoError(t, err)
	assert.Contains(t, out, created.ID)

	_, err = run(t, "kb", "rm", created.ID)
	require.NoError(t, err)

	_, err = run(t, "kb", "get", created.ID)
	assert.Error(t, err)
}

func TestVector(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "vector", "upsert", "--ns", "notes", "not-a-number", "text")
	assert.Error(t, err)

	_, err = run(t, "vector", "upsert", "--ns", "notes", "123456789012345678", "the", "tide", "is", "out")
	require.NoError(t, err)

	out, err := run(t, "vector", "search", "--ns", "notes", "-k", "1", "the tide is out")
	require.NoError(t, err)
	assert.Contains(t, out, "123456789012345678")
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitTags(" a, ,b ,"))
	assert.Nil(t, splitTags(""))
}
