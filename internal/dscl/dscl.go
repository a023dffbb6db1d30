// Package dscl wraps the /usr/bin/dscl command line tool for querying and
// mutating directory-service records.
package dscl

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

const dsclPath = "/usr/bin/dscl"

// ErrKeyNotFound is returned by Read when the record exists but does not
// carry the requested attribute.
var ErrKeyNotFound = errors.New("dscl: no such key")

// ErrRecordNotFound is returned by Read when the record itself does not
// exist (eDSRecordNotFound).
var ErrRecordNotFound = errors.New("dscl: record not found")

// Error wraps a failed dscl invocation with the command that was run.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("dscl %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// runFunc executes dscl with the given arguments and returns its stdout.
// Tests substitute this to replay canned transcripts.
type runFunc func(ctx context.Context, args ...string) ([]byte, error)

// Client invokes dscl against a datasource: "." for the local directory or
// "/Search" for every directory in the search path.
type Client struct {
	run runFunc
}

// New returns a client that shells out to /usr/bin/dscl.
func New() *Client {
	return &Client{run: execDscl}
}

func execDscl(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, dsclPath, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, &Error{Args: args, Stderr: string(exitErr.Stderr), Err: err}
		}
		return out, &Error{Args: args, Err: err}
	}
	return out, nil
}

// searchMatch identifies result lines in dscl -search output: a record name,
// two tabs, then the matched attribute.
var searchMatch = regexp.MustCompile(`\w\t\t\w`)

// Search looks for records under path whose key attribute matches value,
// returning the matching record names. A nil slice means no matches.
func (c *Client) Search(ctx context.Context, datasource, path, key, value string) ([]string, error) {
	out, err := c.run(ctx, datasource, "-search", path, key, value)
	if err != nil {
		return nil, err
	}

	var matches []string
	for _, line := range strings.Split(string(out), "\n") {
		if searchMatch.MatchString(line) {
			matches = append(matches, strings.SplitN(line, "\t\t", 2)[0])
		}
	}
	return matches, nil
}

var listLine = regexp.MustCompile(`^(\S+)\s*(.*)$`)

// List enumerates records under path. When key is non-empty its value is
// fetched alongside each record name; records without the attribute are
// omitted from the result.
func (c *Client) List(ctx context.Context, datasource, path, key string) (map[string]string, error) {
	args := []string{datasource, "-list", path}
	if key != "" {
		args = append(args, key)
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	records := map[string]string{}
	for _, line := range strings.Split(string(out), "\n") {
		m := listLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if key != "" && m[2] == "" {
			continue
		}
		records[m[1]] = m[2]
	}
	return records, nil
}

// Read fetches a single attribute from a record. Returns ErrKeyNotFound when
// the record has no such attribute.
func (c *Client) Read(ctx context.Context, datasource, path, key string) (string, error) {
	out, err := c.run(ctx, datasource, "-read", path, key)
	if err != nil {
		var dsclErr *Error
		if errors.As(err, &dsclErr) {
			switch {
			case strings.Contains(dsclErr.Stderr, "No such key"):
				return "", ErrKeyNotFound
			case strings.Contains(dsclErr.Stderr, "eDSRecordNotFound"):
				return "", ErrRecordNotFound
			}
		}
		return "", err
	}
	return parseReadOutput(string(out), key)
}

// parseReadOutput handles both single-line ("key: value") and wrapped
// ("key:\n value") attribute output. Attribute names may carry a type
// prefix, e.g. "dsAttrTypeNative:naprivs".
func parseReadOutput(out, key string) (string, error) {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	for i, line := range lines {
		var rest string
		switch {
		case strings.HasPrefix(line, key+":"):
			rest = line[len(key)+1:]
		case strings.Contains(line, ":"+key+":"):
			rest = line[strings.Index(line, ":"+key+":")+len(key)+2:]
		default:
			continue
		}
		if value := strings.TrimSpace(rest); value != "" {
			return value, nil
		}
		if i+1 < len(lines) {
			return strings.TrimSpace(lines[i+1]), nil
		}
	}
	return "", ErrKeyNotFound
}

// Create sets an attribute on a record, replacing any existing value.
func (c *Client) Create(ctx context.Context, datasource, path, key, value string) error {
	_, err := c.run(ctx, datasource, "-create", path, key, value)
	return err
}

// Delete removes an attribute from a record.
func (c *Client) Delete(ctx context.Context, datasource, path, key string) error {
	_, err := c.run(ctx, datasource, "-delete", path, key)
	return err
}
