package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/config"
	"github.com/jonathan/outreach-agent/internal/server"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/spf13/cobra"
)

var (
	operatorEmail    string
	operatorName     string
	operatorRole     string
	operatorPassword string
	operatorDBURL    string
)

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage dashboard operators",
}

var operatorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an operator",
	Long: `Create an operator with a bcrypt-hashed password. The password is read from --password
or the OPERATOR_PASSWORD environment variable.`,
	RunE: runOperatorAdd,
}

var operatorTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development session token for an operator",
	Long: `Print a signed session token for an existing operator, for local development and
scripted API calls. Tokens are signed with JWT_SECRET.`,
	RunE: runOperatorToken,
}

func init() {
	operatorCmd.PersistentFlags().StringVar(&operatorEmail, "email", "", "Operator email (required)")
	operatorCmd.PersistentFlags().StringVar(&operatorDBURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")
	_ = operatorCmd.MarkPersistentFlagRequired("email")

	operatorAddCmd.Flags().StringVar(&operatorName, "name", "", "Display name (required)")
	operatorAddCmd.Flags().StringVar(&operatorRole, "role", string(types.CapabilityRead), "Role: read or admin")
	operatorAddCmd.Flags().StringVar(&operatorPassword, "password", "", "Password (defaults to OPERATOR_PASSWORD env var)")
	_ = operatorAddCmd.MarkFlagRequired("name")

	operatorCmd.AddCommand(operatorAddCmd, operatorTokenCmd)
	rootCmd.AddCommand(operatorCmd)
}

// operatorStore opens the Postgres store for operator commands.
func operatorStore(ctx context.Context) (store, func(), error) {
	cfg := config.FromEnv()
	if operatorDBURL != "" {
		cfg.DatabaseURL = operatorDBURL
	}
	return openStore(ctx, storePostgres, cfg)
}

func runOperatorAdd(cmd *cobra.Command, _ []string) error {
	password := operatorPassword
	if password == "" {
		password = os.Getenv("OPERATOR_PASSWORD")
	}
	req := types.CreateOperatorRequest{
		Email:    strings.ToLower(strings.TrimSpace(operatorEmail)),
		Name:     operatorName,
		Role:     types.Capability(operatorRole),
		Password: password,
	}
	if err := req.Validate(); err != nil {
		return apperrors.FromValidator(err)
	}

	pwCfg, err := config.NewPasswordConfig()
	if err != nil {
		return fmt.Errorf("failed to create password config: %w", err)
	}
	hash, err := pwCfg.HashPassword(req.Password)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, closeStore, err := operatorStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	op := &types.Operator{Email: req.Email, Name: req.Name, Role: req.Role, PasswordHash: hash}
	if err := st.CreateOperator(ctx, op); err != nil {
		return fmt.Errorf("failed to create operator: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s operator %s (%s)\n", op.Role, op.Email, op.ID)
	return nil
}

func runOperatorToken(cmd *cobra.Command, _ []string) error {
	sessionCfg, err := config.NewSessionConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, closeStore, err := operatorStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	op, err := st.GetOperatorByEmail(ctx, strings.ToLower(strings.TrimSpace(operatorEmail)))
	if err != nil {
		return fmt.Errorf("failed to find operator: %w", err)
	}
	token, err := server.NewJWTService(sessionCfg).GenerateToken(op)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
