package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/postgres"
	"github.com/spf13/cobra"
)

type keysOptions struct {
	configPath string
	name       string
	rateLimit  int
	expiresIn  time.Duration
}

func newKeysCmd() *cobra.Command {
	ko := &keysOptions{}
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys for the administration endpoints",
	}
	cmd.PersistentFlags().StringVar(&ko.configPath, "config", "configs/development.yaml", "service config with the postgres settings")

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a key and print it once",
		Args:  cobra.NoArgs,
		RunE:  ko.create,
	}
	f := create.Flags()
	f.StringVar(&ko.name, "name", "", "label for the key (required)")
	f.IntVar(&ko.rateLimit, "rate-limit", 100, "requests per rate limit window")
	f.DurationVar(&ko.expiresIn, "expires-in", 0, "lifetime, e.g. 720h (0 never expires)")

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Deactivate a key by ID",
		Args:  cobra.ExactArgs(1),
		RunE:  ko.revoke,
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List active keys",
		Args:  cobra.NoArgs,
		RunE:  ko.list,
	}
	cmd.AddCommand(create, revoke, list)
	return cmd
}

func (ko *keysOptions) store(ctx context.Context) (*apikey.Store, func(), error) {
	cfg, err := config.Load(ko.configPath)
	if err != nil {
		return nil, nil, err
	}
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	store := apikey.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

func (ko *keysOptions) create(cmd *cobra.Command, _ []string) error {
	if ko.name == "" {
		return errors.New("--name is required")
	}
	if ko.rateLimit <= 0 {
		return errors.New("--rate-limit must be positive")
	}
	if ko.expiresIn < 0 {
		return errors.New("--expires-in must not be negative")
	}
	store, closeDB, err := ko.store(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	var expiresAt *time.Time
	if ko.expiresIn > 0 {
		t := time.Now().Add(ko.expiresIn).UTC()
		expiresAt = &t
	}
	raw, info, err := store.Create(cmd.Context(), ko.name, ko.rateLimit, expiresAt)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "API key created. It is shown only once.")
	fmt.Fprintf(out, "  key:         %s\n", raw)
	fmt.Fprintf(out, "  id:          %s\n", info.ID)
	fmt.Fprintf(out, "  name:        %s\n", info.Name)
	fmt.Fprintf(out, "  rate limit:  %d\n", info.RateLimit)
	fmt.Fprintf(out, "  expires:     %s\n", formatExpiry(info.ExpiresAt))
	return nil
}

func (ko *keysOptions) revoke(cmd *cobra.Command, args []string) error {
	store, closeDB, err := ko.store(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	if err := store.Revoke(cmd.Context(), args[0]); err != nil {
		if errors.Is(err, apikey.ErrInvalidKey) {
			return fmt.Errorf("no active key with id %s", args[0])
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
	return nil
}

func (ko *keysOptions) list(cmd *cobra.Command, _ []string) error {
	store, closeDB, err := ko.store(cmd.Context())
	if err != nil {
		return err
	}
	defer closeDB()

	keys, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRATE LIMIT\tEXPIRES")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", k.ID, k.Name, k.RateLimit, formatExpiry(k.ExpiresAt))
	}
	return tw.Flush()
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
