package output

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

type TableFormatter struct{}

func (f *TableFormatter) Format(report *Report) ([]byte, error) {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.AppendHeader(table.Row{"User", "Privileges", "Observation", "Mask"})

	users := make([]UserPrivileges, len(report.Users))
	copy(users, report.Users)
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})

	for _, user := range users {
		t.AppendRow(table.Row{
			user.Username,
			f.colorizePrivileges(user.Privileges),
			f.observation(user.Notified),
			user.Mask,
		})
	}

	t.Render()

	buf.WriteString("\n")
	buf.WriteString(f.formatSummary(report))

	return buf.Bytes(), nil
}

func (f *TableFormatter) colorizePrivileges(privs []string) string {
	shown := make([]string, 0, len(privs))
	for _, p := range privs {
		switch p {
		case "all":
			shown = append(shown, color.New(color.FgRed, color.Bold).Sprint(p))
		case "observe_notified", "observe_hidden":
			// Shown in the Observation column instead.
		default:
			shown = append(shown, p)
		}
	}
	if len(shown) == 0 {
		return color.New(color.FgWhite, color.Faint).Sprint("none")
	}
	return strings.Join(shown, ", ")
}

func (f *TableFormatter) observation(notified bool) string {
	if notified {
		return color.YellowString("notified")
	}
	return "hidden"
}

func (f *TableFormatter) formatSummary(report *Report) string {
	var buf strings.Builder

	status := color.RedString("inactive")
	if report.ServiceActive {
		status = color.GreenString("active")
	}
	buf.WriteString(fmt.Sprintf("Remote management service: %s\n", status))
	buf.WriteString(fmt.Sprintf("Users with privileges: %d\n", len(report.Users)))

	return buf.String()
}
