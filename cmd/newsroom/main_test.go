package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	envFile := filepath.Join(t.TempDir(), "missing.env")
	root.SetArgs(append(args, "--env-file", envFile))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGraph_Newsroom(t *testing.T) {
	out, err := execute(t, "graph")
	require.NoError(t, err)
	assert.Equal(t, `entry: researcher
nodes: researcher, writer, editor
  researcher -> writer
  writer -?-> editor | __end__
  editor -> __end__
`, out)
}

func TestGraph_NewsroomWithoutEditor(t *testing.T) {
	t.Setenv("NEWSROOM_EDITOR", "false")
	out, err := execute(t, "graph")
	require.NoError(t, err)
	assert.Contains(t, out, "writer -> __end__")
	assert.NotContains(t, out, "editor")
}

func TestGraph_Assistant(t *testing.T) {
	out, err := execute(t, "graph", "--pipeline", "assistant")
	require.NoError(t, err)
	assert.Contains(t, out, "entry: agent\n")
	assert.Contains(t, out, "agent -?-> tools | __end__")
	assert.Contains(t, out, "tools -> agent")
}

func TestGraph_UnknownPipeline(t *testing.T) {
	_, err := execute(t, "graph", "--pipeline", "sports")
	assert.ErrorContains(t, err, "unknown pipeline")
}

func TestModelCommandsRequireAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	_, err := execute(t, "research", "The history of NVIDIA")
	assert.ErrorContains(t, err, "OPENROUTER_API_KEY")

	_, err = execute(t, "ask", "--thread", "t1", "hello")
	assert.ErrorContains(t, err, "OPENROUTER_API_KEY")
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "sqlite")
	_, err := execute(t, "graph")
	assert.ErrorContains(t, err, "SESSION_BACKEND")
}
