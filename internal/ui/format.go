package ui

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"github.com/olekukonko/tablewriter"

	"starflow/pkg/errors"
)

var (
	// Output receives everything the package prints.
	Output io.Writer = os.Stdout

	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Color functions
	ColorSuccess  = colorFunc(ansi.Green)
	ColorError    = colorFunc(ansi.Red)
	ColorWarning  = colorFunc(ansi.Yellow)
	ColorInfo     = colorFunc(ansi.Cyan)
	ColorProgress = colorFunc(ansi.Blue)
	ColorBold     = colorFunc("default+b")
	ColorDim      = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(code string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, code)
		}
		return text
	}
}

// SetColor forces color on or off, e.g. for --no-color or tests.
func SetColor(enabled bool) {
	supportsColor = enabled
	color.NoColor = !enabled
}

// ShowHeader displays a formatted header
func ShowHeader(title string) {
	width := 50
	if len(title)+4 > width {
		width = len(title) + 4
	}
	padding := (width - len(title) - 2) / 2

	fmt.Fprintln(Output, "\n+"+strings.Repeat("-", width-2)+"+")
	fmt.Fprintf(Output, "|%s%s%s|\n",
		strings.Repeat(" ", padding),
		ColorBold(title),
		strings.Repeat(" ", width-2-padding-len(title)),
	)
	fmt.Fprintln(Output, "+"+strings.Repeat("-", width-2)+"+")
}

// ShowError displays a formatted error message. Structured errors show
// their code, vendor details and suggestions on separate lines.
func ShowError(err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		fmt.Fprintf(Output, "\n%s %s\n", ColorError("ERROR:"), err.Error())
		if suggestion := getSuggestion(err.Error()); suggestion != "" {
			fmt.Fprintf(Output, "\n  %s %s\n", ColorInfo("TIP:"), ColorInfo(suggestion))
		}
		return
	}

	fmt.Fprintf(Output, "\n%s %s %s\n", ColorError("ERROR:"), ColorDim("["+string(appErr.Code)+"]"), appErr.Message)
	if appErr.Cause != nil {
		fmt.Fprintf(Output, "  %s\n", ColorDim(appErr.Cause.Error()))
	}
	for _, d := range appErr.Details {
		fmt.Fprintf(Output, "  - %s\n", d)
	}

	suggestions := appErr.Suggestions
	if len(suggestions) == 0 {
		if s := getSuggestion(err.Error()); s != "" {
			suggestions = []string{s}
		}
	}
	for _, s := range suggestions {
		fmt.Fprintf(Output, "\n  %s %s", ColorInfo("TIP:"), ColorInfo(s))
	}
	if len(suggestions) > 0 {
		fmt.Fprintln(Output)
	}
}

// ShowSuccess displays a success message
func ShowSuccess(message string) {
	fmt.Fprintf(Output, "%s %s\n", ColorSuccess("SUCCESS:"), message)
}

// ShowWarning displays a warning message
func ShowWarning(message string) {
	fmt.Fprintf(Output, "%s %s\n", ColorWarning("WARNING:"), ColorWarning(message))
}

// ShowInfo displays an info message
func ShowInfo(message string) {
	fmt.Fprintf(Output, "%s %s\n", ColorInfo("INFO:"), message)
}

// PrintKeyValue prints a key-value pair in a formatted way
func PrintKeyValue(key, value string) {
	fmt.Fprintf(Output, "  %-20s %s\n", ColorDim(key+":"), value)
}

// Table buffers rows and renders them with tablewriter.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a new table
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow adds a data row to the table
func (t *Table) AddRow(values ...string) {
	t.rows = append(t.rows, values)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table to Output.
func (t *Table) Render() {
	t.RenderTo(Output)
}

// RenderTo writes the table to w.
func (t *Table) RenderTo(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(t.headers)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(t.rows)
	table.Render()
}

// RenderTable writes rows under headers to w.
func RenderTable(w io.Writer, headers []string, rows [][]string) {
	t := NewTable(headers...)
	t.rows = rows
	t.RenderTo(w)
}

// Status colors a task or check state.
func Status(state string) string {
	if !supportsColor {
		return state
	}
	switch state {
	case "success", "passed":
		return color.GreenString(state)
	case "failed", "errored":
		return color.RedString(state)
	case "upstream_failed", "skipped":
		return color.YellowString(state)
	case "planned":
		return color.CyanString(state)
	}
	return state
}

// getSuggestion returns helpful suggestions based on error messages
func getSuggestion(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "authentication failed"):
		return "Check DB_USER and DB_PASSWORD in the [CLUSTER] section"
	case strings.Contains(lower, "connection refused"):
		return "Verify the cluster endpoint and that the security group allows your address"
	case strings.Contains(lower, "syntax error"):
		return "Review the SQL of the failing task"
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "access denied"):
		return "Ensure the IAM role or service account has the necessary privileges"
	case strings.Contains(lower, "does not exist"), strings.Contains(lower, "not found"):
		return "Create the tables first, e.g. 'starflow dwh create-tables'"
	default:
		return ""
	}
}

// Confirm shows a yes/no prompt
func Confirm(message string, defaultValue bool) (bool, error) {
	answer := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return false, err
	}
	return answer, nil
}
