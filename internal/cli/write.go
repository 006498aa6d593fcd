package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/beevik/etree"
	"github.com/spf13/cobra"

	"github.com/alechenninger/keyinfo/internal/config"
	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/keyinfo"
	"github.com/alechenninger/keyinfo/internal/xmltree"
)

// NewWriteCmd creates the write command.
func NewWriteCmd() *cobra.Command {
	var operation string
	var keyName string
	var outPath string

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a <KeyInfo> element naming a key",
		Long: `Write builds a <KeyInfo> element containing a <KeyName> child and
drives the write-usage registry over it. It exists mainly to exercise
the write half of the driver from the command line; embedders with
richer key material (RSAKeyValue, X509Data, EncryptedKey, ...) drive
internal/keyinfo.Write directly against their own template.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, operation, keyName, outPath)
		},
	}

	cmd.Flags().StringVar(&operation, "operation", "sign", "surrounding cryptographic operation: sign, verify, encrypt, decrypt")
	cmd.Flags().StringVar(&keyName, "key-name", "", "the KeyName text to write")
	cmd.Flags().StringVar(&outPath, "out", "", "output file path (default: stdout)")
	cmd.MarkFlagRequired("key-name")

	return cmd
}

func runWrite(cmd *cobra.Command, operationFlag, keyName, outPath string) error {
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

	operation, err := parseOperation(operationFlag)
	if err != nil {
		return err
	}

	provider := config.NewProvider(cfg)
	kictx, err := provider.NewContext(ctx, operation, nil)
	if err != nil {
		return fmt.Errorf("building context: %w", err)
	}
	kictx.Mode = keyinfo.ModeWrite

	doc := etree.NewDocument()
	root := doc.CreateElement(xmltree.ElemKeyInfo)
	root.CreateAttr("xmlns", xmltree.NsDSig)
	root.CreateElement(xmltree.ElemKeyName)

	key := keydata.NewKey()
	key.SetName(keyName)

	if err := keyinfo.Write(ctx, root, key, kictx); err != nil {
		return fmt.Errorf("writing KeyInfo: %w", err)
	}

	doc.Indent(2)
	out, err := doc.WriteToString()
	if err != nil {
		return fmt.Errorf("serializing KeyInfo: %w", err)
	}

	if outPath == "" {
		fmt.Println(out)
		return nil
	}

	if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	log.WithField("path", outPath).Info("wrote KeyInfo")
	return nil
}
