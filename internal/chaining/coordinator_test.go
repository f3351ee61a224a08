package chaining

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_ChildNotReadyUntilParentPublishes(t *testing.T) {
	c := New(map[string]string{"child": "parent"})

	assert.False(t, c.ReadyFor("child"))

	c.PublishParent("parent", "p-1", "v-1")
	assert.True(t, c.ReadyFor("child"))

	vars, ok, err := c.VariablesFor("child")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v-1", vars["parent_value"])
	assert.Equal(t, "p-1", vars["parent_api_id"])
}

func TestCoordinator_UnchainedEndpointAlwaysReady(t *testing.T) {
	c := New(map[string]string{"child": "parent"})
	assert.True(t, c.ReadyFor("standalone"))
}

func TestCoordinator_VariablesForUnchainedEndpointErrors(t *testing.T) {
	c := New(map[string]string{"child": "parent"})
	_, ok, err := c.VariablesFor("standalone")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestCoordinator_MultipleChildrenShareParentValue(t *testing.T) {
	c := New(map[string]string{"childA": "parent", "childB": "parent"})
	c.PublishParent("parent", "p-1", "v-1")

	for _, child := range []string{"childA", "childB"} {
		vars, ok, err := c.VariablesFor(child)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v-1", vars["parent_value"])
	}
}

func TestCoordinator_RepublishUpdatesValue(t *testing.T) {
	c := New(map[string]string{"child": "parent"})
	c.PublishParent("parent", "p-1", "v-1")
	c.PublishParent("parent", "p-2", "v-2")

	vars, ok, err := c.VariablesFor("child")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v-2", vars["parent_value"])
	assert.Equal(t, "p-2", vars["parent_api_id"])
}
