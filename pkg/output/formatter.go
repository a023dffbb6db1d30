// Package output renders privilege reports for the terminal or for machine
// consumption.
package output

import (
	"time"
)

// UserPrivileges is one user's decoded remote management privileges.
type UserPrivileges struct {
	Username   string   `json:"username"`
	Mask       string   `json:"mask"`
	Privileges []string `json:"privileges"`
	Notified   bool     `json:"notified"`
}

// Report is a snapshot of remote management state on a host.
type Report struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	ServiceActive bool             `json:"service_active"`
	Users         []UserPrivileges `json:"users"`
}

type Formatter interface {
	Format(report *Report) ([]byte, error)
}

type FormatterType string

const (
	FormatterTable FormatterType = "table"
	FormatterJSON  FormatterType = "json"
)

func GetFormatter(formatType FormatterType) Formatter {
	switch formatType {
	case FormatterJSON:
		return &JSONFormatter{Pretty: true}
	case FormatterTable:
		fallthrough
	default:
		return &TableFormatter{}
	}
}
