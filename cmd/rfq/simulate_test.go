package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.ExecuteContext(context.Background()), errOut.String())
	return out.String()
}

func TestSimulate(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "accept within window",
			args: []string{"--decision", "accept", "--after", "2m"},
			want: []string{
				"Order workflow completed successfully: Order booked with ID O1",
				`"status": "COMPLETED"`,
				`"price": 1000`,
			},
		},
		{
			name: "reject",
			args: []string{"--decision", "reject", "--after", "1m"},
			want: []string{"Quote rejected by client for order O1", `"status": "REJECTED"`},
		},
		{
			name: "expiry without decision",
			args: []string{"--decision", "none", "--after", "16m"},
			want: []string{"Quote expired for order O1", `"status": "EXPIRED"`},
		},
		{
			name: "accept after expiry",
			args: []string{"--decision", "accept", "--after", "16m"},
			want: []string{"quote expired", "Quote expired for order O1", `"isExpired": true`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"simulate", "--order-id", "O1", "--product", "Equity Swap",
				"--quantity", "10", "--client", "Acme"}, tt.args...)
			out := runCLI(t, args...)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestSimulate_UnknownDecision(t *testing.T) {
	rootCmd.SetArgs([]string{"simulate", "--decision", "maybe"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	var errOut bytes.Buffer
	rootCmd.SetErr(&errOut)

	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown decision")
}
