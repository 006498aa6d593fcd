package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

// NewRootCmd creates the root command for the keyinfo CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "keyinfo",
		Short: "keyinfo - a W3C XML-Signature/XML-Encryption KeyInfo processor",
		Long: `keyinfo drives a registry of key-data descriptors over the children of
a <KeyInfo> element: KeyName, KeyValue, RetrievalMethod, KeyInfoReference,
EncryptedKey, DerivedKey, and AgreementMethod.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: ./configs/keyinfo.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override observability.log_level from config")

	rootCmd.AddCommand(NewReadCmd())
	rootCmd.AddCommand(NewWriteCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(levelOverride, configuredLevel, configuredFormat string) *logrus.Logger {
	log := logrus.New()

	level := configuredLevel
	if levelOverride != "" {
		level = levelOverride
	}
	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}

	if configuredFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log
}

func resolveConfigPath() string {
	if configFile != "" {
		return configFile
	}
	if fromEnv := os.Getenv("KEYINFO_CONFIG"); fromEnv != "" {
		return fromEnv
	}
	return "./configs/keyinfo.yaml"
}
