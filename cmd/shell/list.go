package shell

import (
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hitzhangjie/dwarfmap/pkg/symbol"
)

var listCmd = &cobra.Command{
	Use:     "list <file:lineno|address>",
	Short:   "show source around a line",
	Aliases: []string{"l"},
	Args:    cobra.ExactArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupSource,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			sm     = CurrentSession.sm
			file   string
			lineno int
		)

		if pc, err := parseAddress(args[0]); err == nil {
			loc, err := sm.PCToLocation(pc)
			if err != nil {
				return err
			}
			file, lineno = loc.Path, loc.Line
		} else {
			name, ln, err := symbol.ParseLoc(args[0])
			if err != nil {
				return err
			}
			if file, err = sm.ResolveFile(name); err != nil {
				return err
			}
			lineno = ln
		}

		return listFileLines(cmd.OutOrStdout(), file, lineno, 5)
	},
}

func init() {
	shellRootCmd.AddCommand(listCmd)
}

// list file lines, lineno is 1-based
func listFileLines(w io.Writer, file string, lineno, rng int) error {

	lines, offset, err := listFile(file, lineno, rng)
	if err != nil {
		return errors.WithMessage(err, "list file")
	}

	// use 1-based counter
	idx := offset + 1
	for _, ln := range lines {
		if idx != lineno {
			fmt.Fprintf(w, "%-4s\t%d\t%s\n", "", idx, ln)
		} else {
			fmt.Fprintf(w, "%-4s\t%d\t%s\n", "=>", idx, ln)
		}
		idx++
	}

	return nil
}

// return value `offset` is zero-based counter
func listFile(file string, lineno, rng int) (lines []string, offset int, err error) {
	dat, err := ioutil.ReadFile(file)
	if err != nil {
		err = errors.Wrap(err, "read file")
		return
	}

	raw := strings.Split(string(dat), "\n")
	count := len(raw)

	begin := lineno - rng
	if begin < 0 {
		begin = 0
	}
	if begin > count {
		return
	}

	end := lineno + rng
	if end > count {
		end = count
	}

	return raw[begin:end], begin, nil
}
