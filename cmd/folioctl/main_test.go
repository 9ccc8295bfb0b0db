package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"folio/api/internal/lifecycle"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestActionsCommand(t *testing.T) {
	out, err := execute(t, "actions", "--kind", "feedback", "--state", "draft")
	require.NoError(t, err)
	assert.Equal(t, []string{"assign", "delete"}, strings.Fields(out))

	out, err = execute(t, "actions", "--kind", "feedback", "--state", "draft", "--assigned")
	require.NoError(t, err)
	assert.Equal(t, []string{"assign", "delete", "send", "unassign"}, strings.Fields(out))
}

func TestActionsAcceptsCollectionNames(t *testing.T) {
	actions, err := availableActions(lifecycle.MustDefault(), "receipts", "sent", false)
	require.NoError(t, err)
	assert.Contains(t, actions, lifecycle.Action("settle"))
	assert.NotContains(t, actions, lifecycle.Action("complete"))
}

func TestActionsRejectsUnknownInput(t *testing.T) {
	_, err := execute(t, "actions", "--kind", "invoice")
	assert.ErrorContains(t, err, "unknown kind")

	_, err = execute(t, "actions", "--kind", "wall", "--state", "sent")
	assert.ErrorContains(t, err, "no state")

	_, err = execute(t, "actions")
	assert.Error(t, err)
}

func TestTablesCommandPrintsYAML(t *testing.T) {
	out, err := execute(t, "tables", "--kind", "wall")
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	require.Contains(t, decoded, "wall")
	assert.Equal(t, "draft", decoded["wall"]["initial"])
	assert.Len(t, decoded, 1)

	_, err = execute(t, "tables", "--kind", "invoice")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}
