package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-rfq/internal/client"
	"github.com/ahrav/go-rfq/internal/config"
	"github.com/ahrav/go-rfq/internal/registry"
	"github.com/ahrav/go-rfq/internal/store"
	"github.com/ahrav/go-rfq/internal/worker"
)

// session is a registry backed by the Temporal cluster, restored from the
// configured record store.
type session struct {
	reg     *registry.Registry
	closers []func() error
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("Failed to close session resource", "error", err)
		}
	}
}

func openSession(ctx context.Context) (*session, error) {
	s := &session{}

	var records store.RecordStore = store.NewMemoryRecordStore()
	if cfg.Store.Backend == config.BackendRedis {
		rc, err := store.NewRedisClient(ctx, cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, rc.Close)
		records = store.NewRedisRecordStore(rc,
			store.WithPrefix(cfg.Store.Redis.Prefix),
			store.WithTTL(cfg.Store.Redis.TTL))
	}

	c, err := worker.NewTemporalClient(cfg.Temporal, logger)
	if err != nil {
		s.close()
		return nil, err
	}
	s.closers = append(s.closers, func() error { c.Close(); return nil })

	s.reg = registry.New(client.NewHost(c, cfg.Temporal.TaskQueue, logger),
		registry.WithStore(records),
		registry.WithLogger(logger))
	if _, err := s.reg.Restore(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// withSession runs fn against a fresh session and explains lookups that miss
// because records are not shared between processes.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, reg *registry.Registry) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	err = fn(ctx, s.reg)
	if errors.Is(err, registry.ErrNotFound) && cfg.Store.Backend == config.BackendMemory {
		return fmt.Errorf("%w (the memory store does not outlive a process; use store.backend=redis)", err)
	}
	return err
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an order for quote",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var req registry.SubmitRequest
		req.OrderID, _ = cmd.Flags().GetString("order-id")
		req.ProductType, _ = cmd.Flags().GetString("product")
		req.Quantity, _ = cmd.Flags().GetInt("quantity")
		req.Client, _ = cmd.Flags().GetString("client")

		return withSession(cmd, func(ctx context.Context, reg *registry.Registry) error {
			resp, err := reg.Submit(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		})
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote <order-id>",
	Short: "Show the quote for an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, reg *registry.Registry) error {
			qv, err := reg.Quote(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), qv)
		})
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept <order-id>",
	Short: "Accept the quote for an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, reg *registry.Registry) error {
			if err := reg.Accept(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Quote accepted for order %s\n", args[0])
			return nil
		})
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <order-id>",
	Short: "Reject the quote for an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, reg *registry.Registry) error {
			if err := reg.Reject(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Quote rejected for order %s\n", args[0])
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <order-id>",
	Short: "Show the status of an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, reg *registry.Registry) error {
			v, err := reg.Status(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known orders",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, func(ctx context.Context, reg *registry.Registry) error {
			views, err := reg.List(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), views)
		})
	},
}

var awaitCmd = &cobra.Command{
	Use:   "await <order-id>",
	Short: "Wait for the outcome of an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return withSession(cmd, func(ctx context.Context, reg *registry.Registry) error {
			o, err := reg.Await(ctx, args[0], timeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), o.String())
			return nil
		})
	},
}

func init() {
	submitCmd.Flags().String("order-id", "", "Order id (generated when empty)")
	submitCmd.Flags().String("product", "", "Product type, e.g. \"Equity Swap\"")
	submitCmd.Flags().Int("quantity", 0, "Quantity requested")
	submitCmd.Flags().String("client", "", "Client requesting the quote")
	_ = submitCmd.MarkFlagRequired("product")
	_ = submitCmd.MarkFlagRequired("quantity")
	_ = submitCmd.MarkFlagRequired("client")

	awaitCmd.Flags().Duration("timeout", time.Minute, "How long to wait for the outcome")

	rootCmd.AddCommand(submitCmd, quoteCmd, acceptCmd, rejectCmd, statusCmd, listCmd, awaitCmd)
}
