package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "screen", "blacklist"})
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestScreenRejectsMalformedTokenID(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"screen", "0xabc"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected chain:address")
}

func TestBlacklistDevRequiresAddress(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"blacklist", "dev", "  "})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address is empty")
}
