package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dsd-finance/finance-hub/internal/app"
	_ "github.com/dsd-finance/finance-hub/internal/testing/guard"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "enqueue", "jobs"} {
		require.True(t, names[want], want)
	}
}

func TestEnqueueRequiresRule(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"enqueue"})
	require.Error(t, root.Execute())
}

func TestServeSkipsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	root := newRootCmd()
	root.SetArgs([]string{"serve"})
	require.NoError(t, root.Execute())
}

func TestRuleListNamesEveryRule(t *testing.T) {
	require.Equal(t, "bank-ap, bank-ar, bank-payout, deal-payment", ruleList())
}
