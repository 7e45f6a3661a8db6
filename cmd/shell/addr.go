package shell

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var addrCmd = &cobra.Command{
	Use:     "addr <address>",
	Short:   "show source line of a load address",
	Aliases: []string{"a"},
	Args:    cobra.ExactArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSource,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		pc, err := parseAddress(args[0])
		if err != nil {
			return err
		}

		loc, err := CurrentSession.sm.PCToLocation(pc)
		if err != nil {
			return err
		}

		desc := fmt.Sprintf("%s:%d", loc.Path, loc.Line)
		if so, err := CurrentSession.sm.PCToSymbol(pc); err == nil {
			desc += fmt.Sprintf(" <%s+%#x>", so.Symbol, so.Offset)
		}
		seg := CurrentSession.sm.Segments()[loc.SegmentIndex]
		CurrentSession.result(cmd, "%s, %s+%#x", desc, seg.Name, loc.SegmentOffset+pc-loc.Address)
		return nil
	},
}

func init() {
	shellRootCmd.AddCommand(addrCmd)
}

func parseAddress(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.Errorf("invalid address: %s", s)
	}
	return v, nil
}
