package shell

import (
	"github.com/spf13/cobra"
)

var lineCmd = &cobra.Command{
	Use:   "line <file:lineno>",
	Short: "show load address of a source line",
	Long:  `show load address of a source line.

file is a full source path or a unique suffix of one, e.g. main.c:10.`,
	Args: cobra.ExactArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSource,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		pc, err := CurrentSession.sm.LocToPC(args[0])
		if err != nil {
			return err
		}
		CurrentSession.result(cmd, "%#x", pc)
		return nil
	},
}

func init() {
	shellRootCmd.AddCommand(lineCmd)
}
