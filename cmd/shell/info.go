package shell

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:     "info <segments|sources|symbols|units>",
	Short:   "list segments, source files, symbols or compilation units",
	Aliases: []string{"i"},
	Args:    cobra.ExactArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		sm := CurrentSession.sm
		out := cmd.OutOrStdout()

		switch args[0] {
		case "segments":
			for i, seg := range sm.Segments() {
				fmt.Fprintf(out, "%d\t%-12s %-4s 0x%08x-0x%08x\n", i, seg.Name, seg.MemoryClass, seg.Address, seg.Address+seg.Size)
			}
		case "sources":
			for _, file := range sm.SourceFiles() {
				fmt.Fprintln(out, file)
			}
		case "symbols":
			symbols := sm.Symbols()
			names := make([]string, 0, len(symbols))
			for name := range symbols {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "0x%08x %s\n", symbols[name], name)
			}
		case "units":
			for _, cu := range sm.CompileUnits {
				fmt.Fprintf(out, "%s\t%s\n", cu.Name, cu.Producer)
				for _, fn := range cu.Functions {
					fmt.Fprintf(out, "\t%s\n", fn.Name)
				}
			}
		default:
			return errors.Errorf("unknown info target: %s", args[0])
		}
		return nil
	},
}

func init() {
	shellRootCmd.AddCommand(infoCmd)
}
