package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dsd-finance/finance-hub/internal/csvrows"
)

func TestPayoutShare(t *testing.T) {
	row := func(amount string, custom map[string]any) csvrows.Row {
		return csvrows.Row{Amount: decimal.RequireFromString(amount), CustomData: custom}
	}
	cases := []struct {
		name string
		row  csvrows.Row
		want string
	}{
		{"net column wins", row("100.00", map[string]any{csvrows.KeyNet: "96.80", csvrows.KeyFee: "1.00"}), "96.80"},
		{"fee deducted", row("100.00", map[string]any{csvrows.KeyFee: "3.20"}), "96.80"},
		{"negative fee column", row("50.00", map[string]any{csvrows.KeyFee: "-2.10"}), "47.90"},
		{"no fee", row("75.00", nil), "75.00"},
		{"unreadable fee ignored", row("75.00", map[string]any{csvrows.KeyFee: "n/a"}), "75.00"},
		{"withdrawal kept", row("500.00", map[string]any{csvrows.KeyKind: "withdrawal", csvrows.KeyNet: "-500.00"}), "500.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, PayoutShare(tc.row).StringFixed(2))
		})
	}
}
