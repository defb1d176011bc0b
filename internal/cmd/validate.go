package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sentra-io/sentra/internal/config"
	"github.com/sentra-io/sentra/internal/policy"
)

var (
	validateFile string
	validateSign bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a policy bundle",
	Long: `Validates a policy bundle against the schema and checks its HMAC-SHA256
fingerprint with the configured signing key. With --sign, prints the
fingerprint the bundle content should carry instead of verifying it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "validate")
		defer span.End()

		if validateFile == "" {
			validateFile = "sentra.bundle.yaml"
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		data, err := os.ReadFile(validateFile)
		if err != nil {
			return fmt.Errorf("reading bundle: %w", err)
		}

		if validateSign {
			fingerprint, err := policy.Fingerprint(data, cfg.SigningKey)
			if err != nil {
				return fmt.Errorf("signing bundle: %w", err)
			}
			fmt.Println(fingerprint)
			return nil
		}

		bundle, err := policy.Verify(data, cfg.SigningKey)
		if err != nil {
			log.Error().
				Err(err).
				Str("file", validateFile).
				Msg("Bundle validation failed")
			fmt.Fprintf(os.Stderr, "✗ Validation failed: %s\n", validateFile)
			return fmt.Errorf("validation failed: %w", err)
		}

		log.Info().
			Str("file", validateFile).
			Str("version", bundle.Version).
			Msg("Bundle validated successfully")

		fmt.Printf("✓ Bundle valid: %s\n", validateFile)
		fmt.Printf("  Version: %s\n", bundle.Version)
		fmt.Printf("  Max drift: %v (warn %v, degraded %v)\n",
			bundle.Budget.MaxDrift, bundle.Budget.WarnAt, bundle.Budget.DegradedAt)
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "bundle file (default: sentra.bundle.yaml)")
	validateCmd.Flags().BoolVar(&validateSign, "sign", false, "print the fingerprint for the bundle content")
	rootCmd.AddCommand(validateCmd)
}
