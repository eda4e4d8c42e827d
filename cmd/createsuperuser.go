package main

import (
	"context"
	"errors"
	"fmt"
	"hello/internal/auth"
	"hello/internal/config"
	"hello/pkg/domain"
	"hello/pkg/logger"
	"hello/pkg/storage"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// superuserPasswordEnv is read when --password is not given.
const superuserPasswordEnv = "SUPERUSER_PASSWORD"

func createsuperuserCommand(cfg *config.Config) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Creates a staff superuser able to sign in to /admin/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if password == "" {
				password = os.Getenv(superuserPasswordEnv)
			}
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password (or %s) are required", superuserPasswordEnv)
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err //nolint: wrapcheck
			}

			db, closeDB := openDatabase(ctx, cfg, 1)
			defer closeDB()

			err = db.WithTx(ctx, func(tx storage.AllStorage) error {
				existing, err := tx.UserByUsername(ctx, username)
				if err != nil {
					return err //nolint: wrapcheck
				}
				if existing != nil {
					return storage.ErrUsernameTaken
				}

				_, err = tx.CreateUser(ctx, domain.User{
					Username:     username,
					PasswordHash: hash,
					IsActive:     true,
					IsStaff:      true,
					IsSuperuser:  true,
				})

				return err //nolint: wrapcheck
			})
			if errors.Is(err, storage.ErrUsernameTaken) {
				return fmt.Errorf("error: that username is already taken: %q", username)
			}
			if err != nil {
				logger.Fatal(ctx, "could not create superuser", zap.Error(err))
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Superuser created successfully.")

			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Login name of the superuser")
	cmd.Flags().StringVar(&password, "password", "", "Password, "+superuserPasswordEnv+" is used when empty")

	return cmd
}
