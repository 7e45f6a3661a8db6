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

	"github.com/spf13/cobra"
)

// lineCmd represents the line command
var lineCmd = &cobra.Command{
	Use:   "line <prog> <file:lineno>...",
	Short: "show load address of source lines",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sm, err := loadSourceMap(args[0])
		if err != nil {
			return err
		}

		for _, loc := range args[1:] {
			pc, err := sm.LocToPC(loc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %#x\n", loc, pc)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lineCmd)
}
