package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ratherlab/rather/backend/internal/admins"
	"github.com/ratherlab/rather/backend/internal/config"
	"github.com/ratherlab/rather/backend/internal/database"
	"github.com/ratherlab/rather/backend/internal/logging"
	"github.com/ratherlab/rather/backend/internal/preferences"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema and data migrations, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(db *gorm.DB, logger *zap.Logger) error {
				logger.Info("migrations applied")
				return nil
			})
		},
	}
}

func newImportCommand() *cobra.Command {
	var (
		categoryID uint
		filePath   string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import preferences into a category from a JSON or YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := readImportFile(filePath)
			if err != nil {
				return err
			}
			return withDatabase(func(db *gorm.DB, logger *zap.Logger) error {
				service, err := preferences.NewService(preferences.ServiceConfig{Database: db, Logger: logger})
				if err != nil {
					return err
				}
				imported, err := service.BulkCreatePreferences(cmd.Context(), categoryID, pairs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d preferences\n", imported)
				return nil
			})
		},
	}
	cmd.Flags().UintVar(&categoryID, "category", 0, "Target category id")
	cmd.Flags().StringVar(&filePath, "file", "", "Path to a JSON or YAML list of preference pairs")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash for admin.password_hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			hash, err := admins.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func readPassword(cmd *cobra.Command) (string, error) {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", admins.ErrMissingPassword
	}
	return password, nil
}

// readImportFile decodes a list of preference pairs. Files ending in .yaml or
// .yml are read as YAML; everything else goes through the admin JSON parser.
func readImportFile(path string) ([]preferences.PreferencePair, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("import file path is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var pairs []preferences.PreferencePair
		if err := yaml.Unmarshal(raw, &pairs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return pairs, nil
	default:
		return preferences.ParseBulkPayload(string(raw))
	}
}

// withDatabase opens (and thereby migrates) the configured store for one-shot commands.
func withDatabase(run func(db *gorm.DB, logger *zap.Logger) error) error {
	appConfig, err := config.LoadDatabase(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(databaseConfig(appConfig), logger)
	if err != nil {
		return err
	}
	defer database.Close(db) //nolint:errcheck
	return run(db, logger)
}
