package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookgo/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-rfq/internal/inproc"
	"github.com/ahrav/go-rfq/internal/negotiation"
	"github.com/ahrav/go-rfq/internal/registry"
	"github.com/ahrav/go-rfq/internal/worker"
)

const simulateWait = 5 * time.Second

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one negotiation in-process on a virtual clock",
	Long: `Negotiates a single order without a Temporal cluster. The quote is created,
the virtual clock is advanced by --after, the decision is delivered and the
final status is printed. With --decision=none and --after past the quote TTL
the quote expires.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		flags := cmd.Flags()
		decision, _ := flags.GetString("decision")
		after, _ := flags.GetDuration("after")

		var req registry.SubmitRequest
		req.OrderID, _ = flags.GetString("order-id")
		req.ProductType, _ = flags.GetString("product")
		req.Quantity, _ = flags.GetInt("quantity")
		req.Client, _ = flags.GetString("client")

		switch decision {
		case "accept", "reject", "none":
		default:
			return fmt.Errorf("unknown decision %q: want accept, reject or none", decision)
		}

		clk := clock.NewMock()
		clk.Add(time.Since(time.Unix(0, 0)))

		deps, err := worker.Build(ctx, cfg, logger, prometheus.NewRegistry(), clk)
		if err != nil {
			return err
		}
		defer func() { _ = deps.Close() }()

		host := inproc.NewHost(deps.Activities, inproc.WithClock(clk), inproc.WithLogger(logger))
		defer func() { _ = host.Close() }()

		reg := registry.New(host,
			registry.WithStore(deps.Records),
			registry.WithClock(clk),
			registry.WithLogger(logger),
			registry.WithObserver(deps.Metrics))

		resp, err := reg.Submit(ctx, req)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := printJSON(out, resp); err != nil {
			return err
		}

		qv, err := waitForQuote(ctx, host, reg, resp.OrderID)
		switch {
		case errors.Is(err, registry.ErrQuoteNotAvailable):
			// The negotiation ended before quoting; the status shows why.
		case err != nil:
			return err
		default:
			if err := printJSON(out, qv); err != nil {
				return err
			}
			clk.Add(after)
			if err := decide(ctx, reg, resp.OrderID, decision); err != nil {
				fmt.Fprintln(out, err)
			}
		}

		o, err := reg.Await(ctx, resp.OrderID, simulateWait)
		switch {
		case errors.Is(err, negotiation.ErrOutcomeTimeout):
			fmt.Fprintf(out, "Order %s is still awaiting a decision\n", resp.OrderID)
		case err != nil:
			return err
		default:
			fmt.Fprintln(out, o.String())
		}

		st, err := reg.Status(ctx, resp.OrderID)
		if err != nil {
			return err
		}
		return printJSON(out, st)
	},
}

func decide(ctx context.Context, reg *registry.Registry, orderID, decision string) error {
	switch decision {
	case "accept":
		return reg.Accept(ctx, orderID)
	case "reject":
		return reg.Reject(ctx, orderID)
	default:
		return nil
	}
}

// waitForQuote waits until the negotiation is awaiting a decision, which is
// when its quote becomes visible, or has ended without one.
func waitForQuote(ctx context.Context, host *inproc.Host, reg *registry.Registry, orderID string) (registry.QuoteView, error) {
	ctx, cancel := context.WithTimeout(ctx, simulateWait)
	defer cancel()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if st, ok := host.Snapshot(orderID); ok {
			switch st.Phase {
			case negotiation.PhaseAwaitingDecision:
				return reg.Quote(ctx, orderID)
			case negotiation.PhaseTerminal:
				if st.Quote == nil {
					return registry.QuoteView{}, registry.ErrQuoteNotAvailable
				}
				return reg.Quote(ctx, orderID)
			}
		}
		select {
		case <-ctx.Done():
			return registry.QuoteView{}, fmt.Errorf("no quote for order %s: %w", orderID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func init() {
	simulateCmd.Flags().String("order-id", "O1", "Order id")
	simulateCmd.Flags().String("product", "Equity Swap", "Product type")
	simulateCmd.Flags().Int("quantity", 10, "Quantity requested")
	simulateCmd.Flags().String("client", "Acme", "Client requesting the quote")
	simulateCmd.Flags().String("decision", "accept", "Client decision: accept, reject or none")
	simulateCmd.Flags().Duration("after", 2*time.Minute, "Virtual time between quote and decision")

	rootCmd.AddCommand(simulateCmd)
}
