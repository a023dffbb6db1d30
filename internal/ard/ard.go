// Package ard manages the macOS Remote Management (Apple Remote Desktop)
// service: per-user privileges stored in the directory service, the legacy
// VNC password file, service activation via kickstart, and the
// com.apple.RemoteManagement preference domain.
package ard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/haasonsaas/macos-ard-tool/internal/dscl"
	"github.com/haasonsaas/macos-ard-tool/pkg/naprivs"
	"github.com/haasonsaas/macos-ard-tool/pkg/vncpass"
)

const (
	kickstartPath   = "/System/Library/CoreServices/RemoteManagement/ARDAgent.app/Contents/Resources/kickstart"
	vncPasswordPath = "/Library/Preferences/com.apple.VNCSettings.txt"
	preferencesPath = "/Library/Preferences/com.apple.RemoteManagement.plist"

	naprivsAttr = "naprivs"
)

// UserNotFoundError reports an attempt to manage privileges for a user that
// does not exist in the directory search path.
type UserNotFoundError struct {
	Username string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %q was not found in the directory search path", e.Username)
}

// DirectoryStore is the directory-service surface the client depends on.
// *dscl.Client satisfies it.
type DirectoryStore interface {
	Search(ctx context.Context, datasource, path, key, value string) ([]string, error)
	List(ctx context.Context, datasource, path, key string) (map[string]string, error)
	Read(ctx context.Context, datasource, path, key string) (string, error)
	Create(ctx context.Context, datasource, path, key, value string) error
	Delete(ctx context.Context, datasource, path, key string) error
}

// runFunc executes an external command and returns its combined exit status
// via error. Tests substitute this.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return out, fmt.Errorf("running %s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Client manages the Remote Management service on the local host.
type Client struct {
	store DirectoryStore
	run   runFunc

	// File locations, overridable for tests.
	vncPasswordFile string
	preferencesFile string
	kickstart       string
}

// NewClient returns a client backed by dscl and the standard system paths.
func NewClient() *Client {
	return New(dscl.New())
}

// New returns a client using the supplied directory store.
func New(store DirectoryStore) *Client {
	return &Client{
		store:           store,
		run:             execRun,
		vncPasswordFile: vncPasswordPath,
		preferencesFile: preferencesPath,
		kickstart:       kickstartPath,
	}
}

// UserPrivilegeMask reads the raw naprivs attribute for a user. The boolean
// is false when the user has no naprivs attribute at all.
func (c *Client) UserPrivilegeMask(ctx context.Context, username string) (naprivs.Mask, bool, error) {
	value, err := c.store.Read(ctx, ".", "/Users/"+username, naprivsAttr)
	if errors.Is(err, dscl.ErrKeyNotFound) {
		return 0, false, nil
	}
	if errors.Is(err, dscl.ErrRecordNotFound) {
		return 0, false, &UserNotFoundError{Username: username}
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading privileges for %s: %w", username, err)
	}

	mask, err := naprivs.ParseMask(value)
	if err != nil {
		return 0, false, err
	}
	return mask, true, nil
}

// UserPrivileges reads and decodes the remote management privileges for a
// single user. A nil set means the user has no privileges attribute.
func (c *Client) UserPrivileges(ctx context.Context, username string) (naprivs.Privileges, error) {
	mask, ok, err := c.UserPrivilegeMask(ctx, username)
	if err != nil || !ok {
		return nil, err
	}
	return naprivs.Decode(mask), nil
}

// User pairs the raw stored mask with its decoded privilege set. Decode is
// not injective, so the mask is kept alongside the symbolic form: for
// directory data with stray bits the two can differ.
type User struct {
	Mask       naprivs.Mask
	Privileges naprivs.Privileges
}

// Users lists every user carrying a naprivs attribute with their stored
// masks and decoded privilege sets.
func (c *Client) Users(ctx context.Context) (map[string]User, error) {
	records, err := c.store.List(ctx, ".", "/Users", naprivsAttr)
	if err != nil {
		return nil, fmt.Errorf("listing remote management users: %w", err)
	}

	users := make(map[string]User, len(records))
	for username, value := range records {
		mask, err := naprivs.ParseMask(value)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", username, err)
		}
		users[username] = User{Mask: mask, Privileges: naprivs.Decode(mask)}
	}
	return users, nil
}

// SetUserPrivileges encodes and writes a privilege set for a user. The user
// must exist in the directory search path.
func (c *Client) SetUserPrivileges(ctx context.Context, username string, privs naprivs.Privileges) error {
	matches, err := c.store.Search(ctx, "/Search", "/Users", "name", username)
	if err != nil {
		return fmt.Errorf("searching for user %s: %w", username, err)
	}
	if len(matches) == 0 {
		return &UserNotFoundError{Username: username}
	}

	mask := naprivs.Encode(privs)
	if err := c.store.Create(ctx, ".", "/Users/"+username, naprivsAttr, mask.String()); err != nil {
		return fmt.Errorf("writing privileges for %s: %w", username, err)
	}
	return nil
}

// ClearUserPrivileges removes the naprivs attribute from a user record,
// leaving the user with no remote management privileges at all.
func (c *Client) ClearUserPrivileges(ctx context.Context, username string) error {
	if err := c.store.Delete(ctx, ".", "/Users/"+username, naprivsAttr); err != nil {
		return fmt.Errorf("clearing privileges for %s: %w", username, err)
	}
	return nil
}

// Active reports whether the ARDAgent process is running.
func (c *Client) Active(ctx context.Context) (bool, error) {
	_, err := c.run(ctx, "/usr/bin/pgrep", "-x", "ARDAgent")
	if err == nil {
		return true, nil
	}
	// pgrep exits 1 when no process matches.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// Activate starts the remote management service.
func (c *Client) Activate(ctx context.Context) error {
	_, err := c.run(ctx, c.kickstart, "-activate")
	return err
}

// Deactivate stops the remote management service.
func (c *Client) Deactivate(ctx context.Context) error {
	_, err := c.run(ctx, c.kickstart, "-deactivate", "-stop")
	return err
}

// VNCPassword reads and deciphers the legacy VNC password. Returns the empty
// string when no password file exists.
func (c *Client) VNCPassword() (string, error) {
	data, err := os.ReadFile(c.vncPasswordFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading VNC password file: %w", err)
	}
	return vncpass.DecodePassword(string(data))
}

// SetVNCPassword ciphers and stores the legacy VNC password. An empty
// password removes the password file.
func (c *Client) SetVNCPassword(password string) error {
	if password == "" {
		return c.RemoveVNCPassword()
	}
	stored, err := vncpass.EncodePassword(password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.vncPasswordFile, []byte(stored), 0o600); err != nil {
		return fmt.Errorf("writing VNC password file: %w", err)
	}
	return nil
}

// RemoveVNCPassword deletes the VNC password file if present.
func (c *Client) RemoveVNCPassword() error {
	err := os.Remove(c.vncPasswordFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing VNC password file: %w", err)
	}
	return nil
}
