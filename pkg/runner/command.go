package runner

import "strings"

// DefaultOutputFlag asks Volatility for machine-readable table output.
const DefaultOutputFlag = "--output=json"

// Command is the typed form of one tool command line. Fields are passed to
// the child as separate argv entries; nothing is ever interpreted by a shell.
type Command struct {
	Interpreter string   // optional, e.g. "python2.7"
	ToolPath    string   // e.g. "/opt/tools/volatility/vol.py"
	DumpPath    string   // passed as "-f <dump>"
	Profile     string   // passed as "--profile=<profile>"
	PluginArgs  []string // plugin name followed by its flags
	OutputFlag  string   // defaults to DefaultOutputFlag
}

// Argv returns the program and its arguments:
//
//	[interpreter] tool -f <dump> --profile=<profile> <plugin args...> --output=json
func (c Command) Argv() []string {
	argv := make([]string, 0, 6+len(c.PluginArgs))
	if c.Interpreter != "" {
		argv = append(argv, c.Interpreter)
	}
	argv = append(argv, c.ToolPath, "-f", c.DumpPath, "--profile="+c.Profile)
	argv = append(argv, c.PluginArgs...)

	flag := c.OutputFlag
	if flag == "" {
		flag = DefaultOutputFlag
	}
	return append(argv, flag)
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// SplitArgs tokenizes a plugin selector entry on whitespace.
func SplitArgs(plugin string) []string {
	return strings.Fields(plugin)
}
