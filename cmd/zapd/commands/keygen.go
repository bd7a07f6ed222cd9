package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/not-mt/zapd/auth"
	"github.com/not-mt/zapd/display"
	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/sym"
)

// KeygenCmd generates an API key for the auth config
var KeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: sym.Auth + " Generate an API key",
	Long: sym.Auth + ` keygen — Generate a zapd API key

Mints a new API key and prints it exactly once, together with its sha256
key_hash and a ready-to-paste [[auth.api_keys]] config block. Only the
hash goes into the config file; zapd never stores the key itself.

Examples:
  zapd keygen --name ci-bot
  zapd keygen --name nikola --contact nikola@example.com`,
	RunE: runKeygen,
}

var (
	keygenName    string
	keygenMemo    string
	keygenContact string
)

func init() {
	KeygenCmd.Flags().StringVar(&keygenName, "name", "", "Key name, shown in logs and the config block")
	KeygenCmd.Flags().StringVar(&keygenMemo, "memo", "", "Optional note stored with the key")
	KeygenCmd.Flags().StringVar(&keygenContact, "contact", "", "Optional owner contact stored with the key")
	_ = KeygenCmd.MarkFlagRequired("name")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(keygenName) == "" {
		return errors.NewInvalidRequestError("key name cannot be blank")
	}

	key, fingerprint, err := auth.GenerateKey()
	if err != nil {
		return errors.Wrap(err, "failed to generate key")
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]string{
			"name":     keygenName,
			"key":      key,
			"key_hash": fingerprint,
		})
	}

	pterm.Success.Printf("Generated API key %q\n", keygenName)
	fmt.Println()
	fmt.Printf("  %s\n", key)
	fmt.Println()
	pterm.Warning.Println("This key is shown once and never stored; copy it now.")
	fmt.Println()
	fmt.Println("Add to zapd.toml:")
	fmt.Println()
	fmt.Print(configBlock(keygenName, fingerprint, keygenMemo, keygenContact))
	return nil
}

// configBlock renders the [[auth.api_keys]] TOML for a freshly minted key.
// The ACL grants read on every section; widen permissions per key as needed.
func configBlock(name, fingerprint, memo, contact string) string {
	var b strings.Builder
	b.WriteString("[[auth.api_keys]]\n")
	fmt.Fprintf(&b, "name = %q\n", name)
	fmt.Fprintf(&b, "key_hash = %q\n", fingerprint)
	if memo != "" {
		fmt.Fprintf(&b, "memo = %q\n", memo)
	}
	if contact != "" {
		fmt.Fprintf(&b, "contact = %q\n", contact)
	}
	b.WriteString("\n[[auth.api_keys.acls]]\n")
	b.WriteString("section_regex = \"^(widgets|gadgets)$\"\n")
	b.WriteString("permissions = [\"read\"]\n")
	return b.String()
}
