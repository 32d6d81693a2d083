package main

import (
	"context" // Context for connections
	"fmt"     // Error wrapping
	"os"      // Exit codes
	"strings" // Code normalisation
	"time"    // Timeouts

	"remittance_system/internal/config" // Custom import path (Config)
	"remittance_system/internal/db"     // Custom import path (Database)
	"remittance_system/internal/domain" // Custom import path (Models)
	"remittance_system/internal/tenant" // Custom import path (Tenancy)

	"github.com/sirupsen/logrus" // Logrus for structured logging
	"github.com/spf13/cobra"     // CLI framework
	"gorm.io/gorm"               // GORM ORM library
)

const connectTimeout = 10 * time.Second

// Main entry point for migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create and update the platform and tenant schemas",
	}
	rootCmd.AddCommand(platformCmd(cfg))
	rootCmd.AddCommand(tenantCmd(cfg))
	rootCmd.AddCommand(allCmd(cfg))
	rootCmd.AddCommand(registerCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func platformCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "platform",
		Short: "Migrate the tenant registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := openDSN(cmd.Context(), cfg.DSN())
			if err != nil {
				return err
			}
			return db.MigratePlatform(platform)
		},
	}
}

func tenantCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tenant [code]",
		Short: "Migrate the store of one tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := openDSN(cmd.Context(), cfg.DSN())
			if err != nil {
				return err
			}
			resolver := newResolver(cfg, platform)
			tc, err := resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return migrateTenant(cmd.Context(), tc)
		},
	}
}

func allCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Migrate the registry and every active tenant store",
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := openDSN(cmd.Context(), cfg.DSN())
			if err != nil {
				return err
			}
			if err := db.MigratePlatform(platform); err != nil {
				return err
			}
			if !cfg.PerTenantStores() {
				// tenants share the platform database
				return db.MigrateTenant(platform)
			}
			clients, err := tenant.NewGormRegistry(platform).ListActive(cmd.Context())
			if err != nil {
				return err
			}
			resolver := newResolver(cfg, platform)
			for i := range clients {
				tc, err := resolver.ContextFor(&clients[i])
				if err != nil {
					return err
				}
				if err := migrateTenant(cmd.Context(), tc); err != nil {
					return fmt.Errorf("tenant %s: %w", tc.Code, err)
				}
			}
			return nil
		},
	}
}

func registerCmd(cfg *config.Config) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "register [code] [name]",
		Short: "Add a tenant to the registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := openDSN(cmd.Context(), cfg.DSN())
			if err != nil {
				return err
			}
			client := domain.Client{
				Code:             strings.ToUpper(strings.TrimSpace(args[0])),
				Name:             args[1],
				Active:           true,
				ConnectionString: dsn,
			}
			if err := platform.WithContext(cmd.Context()).Create(&client).Error; err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{"code": client.Code, "id": client.ID}).Info("Tenant registered")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "dedicated store (per-tenant-store mode)")
	return cmd
}

func newResolver(cfg *config.Config, platform *gorm.DB) *tenant.Resolver {
	return tenant.NewResolver(tenant.NewGormRegistry(platform), tenant.Mode(cfg.TenancyMode), cfg.DSN(), cfg.TenantResolveTimeout)
}

func migrateTenant(ctx context.Context, tc tenant.Context) error {
	store, err := openDSN(ctx, tc.ConnString)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := store.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	logrus.WithField("tenant", tc.Code).Info("Migrating tenant store")
	return db.MigrateTenant(store)
}

func openDSN(ctx context.Context, dsn string) (*gorm.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return db.Open(ctx, dsn)
}
