/*
Copyright © 2020 hit.zhangjie@gmail.com

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// lookupCmd represents the lookup command
var lookupCmd = &cobra.Command{
	Use:   "lookup <prog> <addr>...",
	Short: "show source line and symbol of load addresses",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sm, err := loadSourceMap(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, arg := range args[1:] {
			pc, err := strconv.ParseUint(arg, 0, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid address %q", arg)
			}

			fmt.Fprintf(out, "%#x:", pc)
			if so, err := sm.PCToSymbol(pc); err == nil {
				fmt.Fprintf(out, " %s+%#x", so.Symbol, so.Offset)
			}
			if loc, err := sm.PCToLocation(pc); err == nil {
				fmt.Fprintf(out, " %s:%d", loc.Path, loc.Line)
			} else {
				fmt.Fprintf(out, " ??:0")
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}
