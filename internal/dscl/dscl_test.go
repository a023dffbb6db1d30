package dscl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRun replays a canned transcript for a single expected invocation.
func fakeRun(t *testing.T, wantArgs []string, output string, err error) runFunc {
	t.Helper()
	return func(_ context.Context, args ...string) ([]byte, error) {
		assert.Equal(t, wantArgs, args)
		return []byte(output), err
	}
}

func TestSearch(t *testing.T) {
	out := "admin\t\tname = (\n admin\n)\n"
	c := &Client{run: fakeRun(t, []string{"/Search", "-search", "/Users", "name", "admin"}, out, nil)}

	matches, err := c.Search(context.Background(), "/Search", "/Users", "name", "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, matches)
}

func TestSearchNoMatches(t *testing.T) {
	c := &Client{run: fakeRun(t, []string{".", "-search", "/Users", "name", "ghost"}, "", nil)}

	matches, err := c.Search(context.Background(), ".", "/Users", "name", "ghost")
	require.NoError(t, err)
	assert.Nil(t, matches)
}

func TestList(t *testing.T) {
	out := strings.Join([]string{
		"admin       -1073741569",
		"guest       -2147483648",
		"nobody",
		"",
	}, "\n")
	c := &Client{run: fakeRun(t, []string{".", "-list", "/Users", "naprivs"}, out, nil)}

	records, err := c.List(context.Background(), ".", "/Users", "naprivs")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"admin": "-1073741569",
		"guest": "-2147483648",
	}, records)
}

func TestListWithoutKey(t *testing.T) {
	out := "daemon\nnobody\nroot\n"
	c := &Client{run: fakeRun(t, []string{".", "-list", "/Users"}, out, nil)}

	records, err := c.List(context.Background(), ".", "/Users", "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"daemon": "", "nobody": "", "root": ""}, records)
}

func TestRead(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"single line", "naprivs: -1073741824\n", "-1073741824"},
		{"wrapped value", "naprivs:\n -1073741824\n", "-1073741824"},
		{"native prefix", "dsAttrTypeNative:naprivs: -1073741824\n", "-1073741824"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{run: fakeRun(t, []string{".", "-read", "/Users/admin", "naprivs"}, tt.output, nil)}

			value, err := c.Read(context.Background(), ".", "/Users/admin", "naprivs")
			require.NoError(t, err)
			assert.Equal(t, tt.want, value)
		})
	}
}

func TestReadKeyNotFound(t *testing.T) {
	invErr := &Error{
		Args:   []string{".", "-read", "/Users/admin", "naprivs"},
		Stderr: "No such key: naprivs\n",
		Err:    fmt.Errorf("exit status 1"),
	}
	c := &Client{run: fakeRun(t, []string{".", "-read", "/Users/admin", "naprivs"}, "", invErr)}

	_, err := c.Read(context.Background(), ".", "/Users/admin", "naprivs")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestReadRecordNotFound(t *testing.T) {
	invErr := &Error{
		Args:   []string{".", "-read", "/Users/ghost", "naprivs"},
		Stderr: "<dscl_cmd> DS Error: -14136 (eDSRecordNotFound)\n",
		Err:    fmt.Errorf("exit status 56"),
	}
	c := &Client{run: fakeRun(t, []string{".", "-read", "/Users/ghost", "naprivs"}, "", invErr)}

	_, err := c.Read(context.Background(), ".", "/Users/ghost", "naprivs")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestReadCommandFailure(t *testing.T) {
	invErr := &Error{Args: []string{".", "-read", "/Users/admin", "naprivs"}, Err: fmt.Errorf("exit status 1")}
	c := &Client{run: fakeRun(t, []string{".", "-read", "/Users/admin", "naprivs"}, "", invErr)}

	_, err := c.Read(context.Background(), ".", "/Users/admin", "naprivs")
	var dsclErr *Error
	require.ErrorAs(t, err, &dsclErr)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
}

func TestCreate(t *testing.T) {
	c := &Client{run: fakeRun(t, []string{".", "-create", "/Users/admin", "naprivs", "-1073741569"}, "", nil)}
	err := c.Create(context.Background(), ".", "/Users/admin", "naprivs", "-1073741569")
	require.NoError(t, err)
}

func TestDelete(t *testing.T) {
	c := &Client{run: fakeRun(t, []string{".", "-delete", "/Users/admin", "naprivs"}, "", nil)}
	err := c.Delete(context.Background(), ".", "/Users/admin", "naprivs")
	require.NoError(t, err)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{
		Args:   []string{".", "-read", "/Users/admin"},
		Stderr: "DS Error: -14136\n",
		Err:    errors.New("exit status 56"),
	}
	assert.Contains(t, err.Error(), "dscl . -read /Users/admin")
	assert.Contains(t, err.Error(), "DS Error: -14136")
}
