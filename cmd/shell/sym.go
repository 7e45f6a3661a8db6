package shell

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var symCmd = &cobra.Command{
	Use:   "sym <name|address>",
	Short: "show address of a symbol, or the symbol at an address",
	Args:  cobra.ExactArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSymbols,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		sm := CurrentSession.sm

		// names win over addresses, a symbol may well be called 100
		if pc, err := sm.SymbolToPC(args[0]); err == nil {
			CurrentSession.result(cmd, "%#x, length %d", pc, sm.SymbolLengths()[args[0]])
			return nil
		}

		pc, err := parseAddress(args[0])
		if err != nil {
			return errors.Errorf("no symbol named %s", args[0])
		}
		so, err := sm.PCToSymbol(pc)
		if err != nil {
			return err
		}
		CurrentSession.result(cmd, "%s+%#x", so.Symbol, so.Offset)
		return nil
	},
}

func init() {
	shellRootCmd.AddCommand(symCmd)
}
