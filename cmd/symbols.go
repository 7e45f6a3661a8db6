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
	"sort"

	"github.com/spf13/cobra"
)

// symbolsCmd represents the symbols command
var symbolsCmd = &cobra.Command{
	Use:   "symbols <prog>",
	Short: "list relocated symbols by address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sm, err := loadSourceMap(args[0])
		if err != nil {
			return err
		}

		symbols := sm.Symbols()
		lengths := sm.SymbolLengths()
		names := make([]string, 0, len(symbols))
		for name := range symbols {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if symbols[names[i]] != symbols[names[j]] {
				return symbols[names[i]] < symbols[names[j]]
			}
			return names[i] < names[j]
		})

		for _, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "0x%08x %6d %s\n", symbols[name], lengths[name], name)
		}
		return nil
	},
}

// segmentsCmd represents the segments command
var segmentsCmd = &cobra.Command{
	Use:   "segments <prog>",
	Short: "list sections placed in target memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sm, err := loadSourceMap(args[0])
		if err != nil {
			return err
		}

		for _, seg := range sm.Segments() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-3d %-12s %-4s 0x%08x %#8x\n",
				seg.SectionIndex, seg.Name, seg.MemoryClass, seg.Address, seg.Size)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(segmentsCmd)
}
