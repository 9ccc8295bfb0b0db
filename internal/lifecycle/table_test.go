package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actions(list ...Action) []Action {
	return list
}

func TestAvailableActionsMatchesTables(t *testing.T) {
	tables, err := DefaultTables()
	require.NoError(t, err)

	cases := []struct {
		kind     Kind
		state    State
		assigned bool
		want     []Action
	}{
		{KindFeedback, StateDraft, false, actions(ActionAssign, ActionDelete)},
		{KindFeedback, StateDraft, true, actions(ActionAssign, ActionDelete, ActionSend, ActionUnassign)},
		{KindFeedback, StateSent, false, actions(ActionCancel, ActionComplete, ActionDelete)},
		{KindFeedback, StateSent, true, actions(ActionAssign, ActionCancel, ActionComplete, ActionDelete, ActionUnassign)},
		{KindFeedback, StateUnassigned, false, actions(ActionAssign, ActionCancel, ActionComplete, ActionDelete)},
		{KindFeedback, StateUnassigned, true, actions(ActionAssign, ActionCancel, ActionComplete, ActionDelete)},
		{KindFeedback, StateCancelled, false, actions(ActionDelete)},
		{KindFeedback, StateCancelled, true, actions(ActionAssign, ActionDelete, ActionRestart, ActionUnassign)},
		{KindFeedback, StateCompleted, false, actions(ActionDelete, ActionUnassign)},
		{KindFeedback, StateCompleted, true, actions(ActionAssign, ActionDelete, ActionUnassign)},
		{KindFeedback, StateOverdue, false, actions(ActionCancel, ActionComplete, ActionDelete)},
		{KindFeedback, StateOverdue, true, actions(ActionAssign, ActionCancel, ActionComplete, ActionDelete, ActionUnassign)},
		{KindReceipt, StateDraft, false, actions(ActionAssign, ActionDelete)},
		{KindReceipt, StateDraft, true, actions(ActionAssign, ActionDelete, ActionSend, ActionUnassign)},
		{KindReceipt, StateSent, false, actions(ActionCancel, ActionDelete, ActionSettle)},
		{KindReceipt, StateSent, true, actions(ActionAssign, ActionCancel, ActionDelete, ActionSettle, ActionUnassign)},
		{KindReceipt, StateUnassigned, false, actions(ActionAssign, ActionCancel, ActionDelete, ActionSettle)},
		{KindReceipt, StateUnassigned, true, actions(ActionAssign, ActionCancel, ActionDelete, ActionSettle)},
		{KindReceipt, StateCancelled, false, actions(ActionDelete)},
		{KindReceipt, StateCancelled, true, actions(ActionAssign, ActionDelete, ActionRestart, ActionUnassign)},
		{KindReceipt, StateSettled, false, actions(ActionDelete, ActionUnassign)},
		{KindReceipt, StateSettled, true, actions(ActionAssign, ActionDelete, ActionUnassign)},
		{KindReceipt, StateOverdue, false, actions(ActionCancel, ActionDelete, ActionSettle)},
		{KindReceipt, StateOverdue, true, actions(ActionAssign, ActionCancel, ActionDelete, ActionSettle, ActionUnassign)},
		{KindPath, StateDraft, false, actions(ActionAssign, ActionDelete, ActionMakePrivate, ActionMakePublic, ActionPublish)},
		{KindPath, StateDraft, true, actions(ActionAssign, ActionDelete, ActionMakePrivate, ActionMakePublic, ActionPublish, ActionUnassign)},
		{KindPath, StatePublished, false, actions(ActionAssign, ActionDelete, ActionMakePrivate, ActionMakePublic, ActionUnpublish)},
		{KindPath, StatePublished, true, actions(ActionAssign, ActionDelete, ActionMakePrivate, ActionMakePublic, ActionSend, ActionUnassign, ActionUnpublish)},
		{KindWall, StateDraft, false, actions(ActionAssign, ActionDelete, ActionMakePrivate, ActionMakePublic, ActionPublish)},
		{KindWall, StateDraft, true, actions(ActionAssign, ActionDelete, ActionMakePrivate, ActionMakePublic, ActionPublish, ActionUnassign)},
		{KindWall, StatePublished, false, actions(ActionAssign, ActionDelete, ActionMakePrivate, ActionMakePublic, ActionUnpublish)},
		{KindWall, StatePublished, true, actions(ActionAssign, ActionDelete, ActionMakePrivate, ActionMakePublic, ActionSend, ActionUnassign, ActionUnpublish)},
	}
	type pair struct {
		kind     Kind
		state    State
		assigned bool
	}
	covered := map[pair]bool{}
	for _, tc := range cases {
		got := tables[tc.kind].Available(tc.state, tc.assigned)
		assert.Equal(t, tc.want, got, "%s/%s assigned=%v", tc.kind, tc.state, tc.assigned)
		covered[pair{tc.kind, tc.state, tc.assigned}] = true
	}
	for kind, table := range tables {
		for _, state := range table.States {
			for _, assigned := range []bool{false, true} {
				assert.True(t, covered[pair{kind, state, assigned}], "no case for %s/%s assigned=%v", kind, state, assigned)
			}
		}
	}
}

func TestDeleteAvailableEverywhere(t *testing.T) {
	tables, err := DefaultTables()
	require.NoError(t, err)
	for kind, table := range tables {
		for _, state := range table.States {
			for _, assigned := range []bool{false, true} {
				assert.True(t, table.Allows(state, assigned, ActionDelete), "%s/%s", kind, state)
			}
		}
	}
}

func TestParseTablesRejectsUnknownTargets(t *testing.T) {
	_, err := ParseTables([]byte(`
feedback:
  initial: draft
  states: [draft]
  targets: {send: shipped}
  progress: {draft: 0}
  rows:
    draft:
      always: [delete]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shipped")
}

func TestParseTablesRequiresRowPerState(t *testing.T) {
	_, err := ParseTables([]byte(`
wall:
  initial: draft
  states: [draft, published]
  progress: {draft: 50, published: 100}
  rows:
    draft:
      always: [delete]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "published")
}

func TestParseCollection(t *testing.T) {
	kind, ok := ParseCollection("Receipts")
	require.True(t, ok)
	assert.Equal(t, KindReceipt, kind)

	_, ok = ParseCollection("invoices")
	assert.False(t, ok)
}
