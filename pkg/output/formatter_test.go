package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return &Report{
		GeneratedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ServiceActive: true,
		Users: []UserPrivileges{
			{
				Username:   "helpdesk",
				Mask:       "-2147483646",
				Privileges: []string{"control_observe", "observe_hidden"},
			},
			{
				Username:   "admin",
				Mask:       "-1073741569",
				Privileges: []string{"all", "observe_notified"},
				Notified:   true,
			},
		},
	}
}

func TestGetFormatter(t *testing.T) {
	assert.IsType(t, &TableFormatter{}, GetFormatter(FormatterTable))
	assert.IsType(t, &JSONFormatter{}, GetFormatter(FormatterJSON))
	assert.IsType(t, &TableFormatter{}, GetFormatter("bogus"))
}

func TestJSONFormatter(t *testing.T) {
	out, err := (&JSONFormatter{Pretty: true}).Format(sampleReport())
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.True(t, decoded.ServiceActive)
	require.Len(t, decoded.Users, 2)
	assert.Equal(t, "-1073741569", decoded.Users[1].Mask)
}

func TestTableFormatter(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	out, err := (&TableFormatter{}).Format(sampleReport())
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "admin")
	assert.Contains(t, text, "helpdesk")
	assert.Contains(t, text, "notified")
	assert.Contains(t, text, "-1073741569")
	assert.Contains(t, text, "Remote management service: active")
	assert.Contains(t, text, "Users with privileges: 2")

	// Users are sorted by name regardless of input order.
	assert.Less(t, strings.Index(text, "admin"), strings.Index(text, "helpdesk"))
}
