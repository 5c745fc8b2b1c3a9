package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tallybill/tally/am"
	"github.com/tallybill/tally/conf"
	"github.com/tallybill/tally/errors"
	"github.com/tallybill/tally/logger"
)

// ConfCmd manages the scoped billing configuration table. This is the
// domain conf table (agent/locale scoped), not process configuration —
// see `tally am` for the latter.
var ConfCmd = &cobra.Command{
	Use:   "conf",
	Short: "Manage scoped billing configuration",
	Long: `conf — Manage scoped billing configuration.

Entries are scoped by agent and locale. Reads resolve through the
fallback chain (agent+locale → agent → global+locale → global);
writes target exactly the named scope.

Examples:
  tally conf get invoice_from                  # Resolved value, global scope
  tally conf get invoice_from --agent 3        # Resolved for agent 3
  tally conf set invoice_from billing@foo.com  # Set at global scope
  tally conf touch enable_taxproducts          # Set a boolean flag
  tally conf del invoice_from --agent 3        # Delete agent 3's override`,
}

var (
	confAgentFlag  int
	confLocaleFlag string
)

var confGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Resolve a configuration value",
	Long:  "Resolve a configuration value through the scope fallback chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfGet,
}

var confSetCmd = &cobra.Command{
	Use:   "set <name> [value]",
	Short: "Set a configuration value at a specific scope",
	Long: `Set a configuration value at the given agent/locale scope.

With no value argument, reads the value from stdin (for multi-line
values). Setting overwrites any existing value at that exact scope.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConfSet,
}

var confTouchCmd = &cobra.Command{
	Use:   "touch <name>",
	Short: "Set a boolean flag",
	Long:  "Create the named entry with an empty value, marking the flag on at the given scope",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfTouch,
}

var confDelCmd = &cobra.Command{
	Use:   "del <name>",
	Short: "Delete a configuration entry",
	Long:  "Delete the entry at the given agent/locale scope. Deleting a missing entry is not an error.",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfDel,
}

func init() {
	ConfCmd.PersistentFlags().IntVar(&confAgentFlag, "agent", 0, "Agent scope (0 = global)")
	ConfCmd.PersistentFlags().StringVar(&confLocaleFlag, "locale", "", "Locale scope override (default from am config)")

	ConfCmd.AddCommand(confGetCmd)
	ConfCmd.AddCommand(confSetCmd)
	ConfCmd.AddCommand(confTouchCmd)
	ConfCmd.AddCommand(confDelCmd)
}

// confEnv wires a resolver and mutator over the configured database.
// The caller must Close the returned cleanup.
func confEnv() (*conf.Resolver, *conf.Mutator, func(), error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to load config")
	}

	database, err := openDatabase("")
	if err != nil {
		return nil, nil, nil, err
	}

	locale := cfg.Conf.Locale
	if confLocaleFlag != "" {
		locale = confLocaleFlag
	}

	resolver := conf.NewResolver(database, locale, logger.Logger)
	if cfg.Conf.LocaleOnly {
		resolver.SetLocaleOnly(true)
	}
	if cfg.Conf.NoCache {
		resolver.Cache().SetEnabled(false)
	}
	mutator := conf.NewMutator(database, resolver, logger.Logger)

	return resolver, mutator, func() { database.Close() }, nil
}

func runConfGet(cmd *cobra.Command, args []string) error {
	resolver, _, cleanup, err := confEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	entry, err := resolver.Resolve(args[0], confAgentFlag, false)
	if err != nil {
		return err
	}
	if entry == nil {
		return errors.Newf("configuration key %q not set", args[0])
	}

	fmt.Println(string(entry.Value))
	return nil
}

func runConfSet(cmd *cobra.Command, args []string) error {
	_, mutator, cleanup, err := confEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		data, err := readAllStdin()
		if err != nil {
			return errors.Wrap(err, "failed to read value from stdin")
		}
		value = data
	}

	if err := mutator.Set(args[0], value, confAgentFlag); err != nil {
		return err
	}

	fmt.Printf("✓ Set %s (agent %d)\n", args[0], confAgentFlag)
	return nil
}

func runConfTouch(cmd *cobra.Command, args []string) error {
	_, mutator, cleanup, err := confEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mutator.Touch(args[0], confAgentFlag); err != nil {
		return err
	}

	fmt.Printf("✓ Touched %s (agent %d)\n", args[0], confAgentFlag)
	return nil
}

func runConfDel(cmd *cobra.Command, args []string) error {
	_, mutator, cleanup, err := confEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mutator.Delete(args[0], confAgentFlag); err != nil {
		return err
	}

	fmt.Printf("✓ Deleted %s (agent %d)\n", args[0], confAgentFlag)
	return nil
}

func readAllStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
