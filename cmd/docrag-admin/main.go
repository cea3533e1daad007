// Command docrag-admin manages users directly in the database.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markdave123-py/docrag/internal/config"
	db "github.com/markdave123-py/docrag/internal/core/database"
	"github.com/markdave123-py/docrag/internal/models"
	"github.com/markdave123-py/docrag/internal/services"
)

var version = "dev"

// userAdmin is the part of services.UserService the CLI drives.
type userAdmin interface {
	ListAll(ctx context.Context) ([]models.User, error)
	SetRole(ctx context.Context, id string, role models.Role) (*models.User, error)
}

type opener func(ctx context.Context, databaseURL, sslCert string) (userAdmin, func(), error)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(openUsers).Execute(); err != nil {
		os.Exit(1)
	}
}

func openUsers(ctx context.Context, databaseURL, sslCert string) (userAdmin, func(), error) {
	pool, err := db.Open(ctx, &config.Config{DatabaseURL: databaseURL, SslCertPath: sslCert})
	if err != nil {
		return nil, nil, err
	}
	client := db.NewDatabaseClient(pool)
	return services.NewUserService(client, nil, zap.NewNop()), func() { _ = client.Close() }, nil
}

func newRootCmd(open opener) *cobra.Command {
	var databaseURL, sslCert string

	root := &cobra.Command{
		Use:          "docrag-admin",
		Short:        "Administrative tasks for a docrag deployment",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL")
	root.PersistentFlags().StringVar(&sslCert, "ssl-cert", os.Getenv("SSL_CERT_PATH"), "CA certificate for sslmode=verify-ca")

	withUsers := func(cmd *cobra.Command, fn func(context.Context, userAdmin) error) error {
		users, closeFn, err := open(cmd.Context(), databaseURL, sslCert)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer closeFn()
		return fn(cmd.Context(), users)
	}

	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect and manage users",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUsers(cmd, func(ctx context.Context, users userAdmin) error {
				all, err := users.ListAll(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLE\tACTIVE")
				for _, u := range all {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", u.ID, u.Username, u.Email, u.Role, u.IsActive)
				}
				return tw.Flush()
			})
		},
	}

	setRole := func(cmd *cobra.Command, id string, role models.Role) error {
		return withUsers(cmd, func(ctx context.Context, users userAdmin) error {
			u, err := users.SetRole(ctx, id, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s (ID: %s) is now %s\n", u.Username, u.ID, u.Role)
			return nil
		})
	}

	promoteCmd := &cobra.Command{
		Use:   "promote <user-id>",
		Short: "Make a user an admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setRole(cmd, args[0], models.RoleAdmin)
		},
	}

	setRoleCmd := &cobra.Command{
		Use:   "set-role <user-id> <admin|moderator|user>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setRole(cmd, args[0], models.Role(args[1]))
		},
	}

	usersCmd.AddCommand(listCmd, promoteCmd, setRoleCmd)
	root.AddCommand(usersCmd)
	return root
}
