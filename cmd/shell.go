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
	"github.com/spf13/cobra"

	"github.com/hitzhangjie/dwarfmap/cmd/shell"
)

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell <prog>",
	Short: "query the source map interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sm, err := loadSourceMap(args[0])
		if err != nil {
			return err
		}
		shell.NewSession(sm).Start()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
