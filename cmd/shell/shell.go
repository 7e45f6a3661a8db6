package shell

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"

	"github.com/hitzhangjie/dwarfmap/pkg/symbol"
)

const (
	cmdGroupAnnotation = "cmd_group_annotation"

	cmdGroupSource  = "1-source"
	cmdGroupSymbols = "2-symbols"
	cmdGroupInfo    = "3-info"
	cmdGroupOthers  = "4-other"
	cmdGroupCobra   = "other"

	cmdGroupDelimiter = "-"

	prefix    = "dwarfmap> "
	descShort = "dwarfmap interactive query commands"
)

var shellRootCmd = &cobra.Command{
	Use:          "help [command]",
	Short:        descShort,
	SilenceUsage: true,
}

var (
	CurrentSession *Session
)

// Session is an interactive query session over one source map.
type Session struct {
	done   chan bool
	prefix string
	root   *cobra.Command
	liner  *liner.State
	last   string

	sm      *symbol.SourceMap
	results *atomic.Uint32

	defers []func()
}

// NewSession creates the session answering queries from sm and makes it
// the current one.
func NewSession(sm *symbol.SourceMap) *Session {

	fn := func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, cmd.Short)
		fmt.Fprintln(out)

		fmt.Fprintln(out, cmd.Use)
		fmt.Fprintln(out, cmd.Flags().FlagUsages())

		usage := helpMessageByGroups(cmd)
		fmt.Fprintln(out, usage)
	}
	shellRootCmd.SetHelpFunc(fn)

	CurrentSession = &Session{
		done:    make(chan bool),
		prefix:  prefix,
		root:    shellRootCmd,
		sm:      sm,
		results: atomic.NewUint32(0),
	}
	return CurrentSession
}

// SetOutput redirects command output to w.
func (s *Session) SetOutput(w io.Writer) {
	s.root.SetOut(w)
	s.root.SetErr(w)
}

// Start reads commands until exit or end of input.
func (s *Session) Start() {
	s.liner = liner.NewLiner()
	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(completer)
	s.liner.SetTabCompletionStyle(liner.TabPrints)

	defer func() {
		for idx := len(s.defers) - 1; idx >= 0; idx-- {
			s.defers[idx]()
		}
	}()
	defer s.liner.Close()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		txt, err := s.liner.Prompt(s.prefix)
		if err != nil {
			if err != io.EOF && err != liner.ErrPromptAborted {
				log.Errorf("read command: %v", err)
			}
			return
		}

		txt = strings.TrimSpace(txt)
		if len(txt) != 0 {
			s.last = txt
			s.liner.AppendHistory(txt)
		} else {
			txt = s.last
		}

		s.Exec(txt)
	}
}

// Exec runs one command line.
func (s *Session) Exec(txt string) error {
	s.root.SetArgs(strings.Fields(txt))
	return s.root.Execute()
}

func (s *Session) AtExit(fn func()) *Session {
	s.defers = append(s.defers, fn)
	return s
}

func (s *Session) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// result prints a query result numbered $1, $2, ... in session order.
func (s *Session) result(cmd *cobra.Command, format string, args ...interface{}) {
	n := s.results.Inc()
	fmt.Fprintf(cmd.OutOrStdout(), "$%d = %s\n", n, fmt.Sprintf(format, args...))
}

// completer completes command names, and source file names after the
// commands taking a location.
func completer(line string) []string {
	cmds := []string{}

	if fields := strings.Fields(line); len(fields) != 0 && !strings.HasSuffix(line, " ") {
		switch fields[0] {
		case "list", "l", "line":
			if len(fields) == 2 && CurrentSession != nil {
				for _, file := range CurrentSession.sm.SourceFiles() {
					base := filepath.Base(file)
					if strings.HasPrefix(base, fields[1]) {
						cmds = append(cmds, fields[0]+" "+base+":")
					}
				}
				return cmds
			}
		}
	}

	for _, c := range shellRootCmd.Commands() {
		// complete cmd
		if strings.HasPrefix(c.Use, line) {
			cmds = append(cmds, strings.Split(c.Use, " ")[0])
		}
		// complete cmd's aliases
		for _, alias := range c.Aliases {
			if strings.HasPrefix(alias, line) {
				cmds = append(cmds, alias)
			}
		}
	}
	return cmds
}

// helpMessageByGroups groups the commands by annotation and lists every
// group sorted by name
func helpMessageByGroups(cmd *cobra.Command) string {

	// key:group, val:sorted commands in same group
	groups := map[string][]string{}
	for _, c := range cmd.Commands() {
		var groupName string
		v, ok := c.Annotations[cmdGroupAnnotation]
		if !ok {
			groupName = cmdGroupCobra
		} else {
			groupName = v
		}

		groupCmds := groups[groupName]
		groupCmds = append(groupCmds, fmt.Sprintf("  %-16s:%s", c.Name(), c.Short))
		sort.Strings(groupCmds)

		groups[groupName] = groupCmds
	}

	if len(groups[cmdGroupCobra]) != 0 {
		groups[cmdGroupOthers] = append(groups[cmdGroupOthers], groups[cmdGroupCobra]...)
	}
	delete(groups, cmdGroupCobra)

	groupNames := []string{}
	for k := range groups {
		groupNames = append(groupNames, k)
	}
	sort.Strings(groupNames)

	buf := bytes.Buffer{}
	for _, groupName := range groupNames {
		commands := groups[groupName]

		group := strings.Split(groupName, cmdGroupDelimiter)[1]
		buf.WriteString(fmt.Sprintf("- [%s]\n", group))

		for _, cmd := range commands {
			buf.WriteString(fmt.Sprintf("%s\n", cmd))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
