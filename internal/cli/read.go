package cli

import (
	"context"
	"fmt"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alechenninger/keyinfo/internal/config"
	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/keyinfo"
)

// NewReadCmd creates the read command.
func NewReadCmd() *cobra.Command {
	var operation string
	var keyName string
	var keyType string

	cmd := &cobra.Command{
		Use:   "read <keyinfo-file>",
		Short: "Read a <KeyInfo> element and resolve its key material",
		Long: `Read parses a <KeyInfo> document and drives the descriptor registry
over its children until a matching key is resolved or the document is
exhausted, per the early-termination rules controlled by the configured
flags.

Configuration precedence (highest to lowest):
  1. Command-line flags
  2. Environment variables (KEYINFO_*)
  3. Configuration file`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, args[0], operation, keyName, keyType)
		},
	}

	cmd.Flags().StringVar(&operation, "operation", "verify", "surrounding cryptographic operation: sign, verify, encrypt, decrypt")
	cmd.Flags().StringVar(&keyName, "key-id", "", "if set, restrict the binary reader used by EncryptedKey to this descriptor ID")
	cmd.Flags().StringVar(&keyType, "key-type", "", "if set, restrict resolution to keys of this KeyType")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runRead(cmd *cobra.Command, path, operationFlag, keyID, keyType string) error {
	ctx := context.Background()

	configPath := resolveConfigPath()
	loader, err := config.NewLoaderWithFlags(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := loader.Get()
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	log := newLogger(logLevel, cfg.Observability.LogLevel, cfg.Observability.LogFormat)

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("%s: empty document", path)
	}

	operation, err := parseOperation(operationFlag)
	if err != nil {
		return err
	}

	req := &keydata.KeyReq{KeyID: keyID, KeyType: keydata.KeyType(keyType)}

	provider := config.NewProvider(cfg)
	kictx, err := provider.NewContext(ctx, operation, req)
	if err != nil {
		return fmt.Errorf("building context: %w", err)
	}
	kictx.Mode = keyinfo.ModeRead

	correlationID := uuid.NewString()
	kictx.UserData = correlationID
	entry := log.WithField("correlation_id", correlationID)

	key := keydata.NewKey()
	if err := keyinfo.Read(ctx, root, key, kictx); err != nil {
		return fmt.Errorf("reading KeyInfo: %w", err)
	}

	if !key.IsValid() {
		entry.WithField("names_tried", key.NamesTried()).Warn("no key resolved")
		fmt.Println("no key resolved")
		return nil
	}

	entry.WithFields(logrusFields(key)).Info("resolved key")
	fmt.Printf("resolved key: name=%q descriptor=%q type=%q size=%d\n",
		key.Name(), key.Value().DescriptorID(), key.Value().Type(), key.Value().Size())
	return nil
}

func parseOperation(s string) (keyinfo.Operation, error) {
	switch s {
	case "", "none":
		return keyinfo.OperationNone, nil
	case "sign":
		return keyinfo.OperationSign, nil
	case "verify":
		return keyinfo.OperationVerify, nil
	case "encrypt":
		return keyinfo.OperationEncrypt, nil
	case "decrypt":
		return keyinfo.OperationDecrypt, nil
	default:
		return keyinfo.OperationNone, fmt.Errorf("unknown operation %q (want sign, verify, encrypt, or decrypt)", s)
	}
}

func logrusFields(key *keydata.Key) map[string]any {
	return map[string]any{
		"name":       key.Name(),
		"descriptor": key.Value().DescriptorID(),
		"type":       string(key.Value().Type()),
		"size":       key.Value().Size(),
	}
}
