package ard

import (
	"errors"
	"fmt"
	"os"

	"howett.net/plist"

	"github.com/haasonsaas/macos-ard-tool/pkg/naprivs"
)

// Preferences models the com.apple.RemoteManagement preference domain.
type Preferences struct {
	AllLocalUsers         bool     `plist:"ARD_AllLocalUsers"`
	AllLocalUsersPrivs    string   `plist:"ARD_AllLocalUsersPrivs"`
	LoadMenuExtra         bool     `plist:"LoadRemoteManagementMenuExtra"`
	DirectoryGroupLogins  bool     `plist:"DirectoryGroupLoginsEnabled"`
	DirectoryGroups       []string `plist:"DirectoryGroupList"`
	LegacyVNCEnabled      bool     `plist:"VNCLegacyConnectionsEnabled"`
	ScreenSharingRequests bool     `plist:"ScreenSharingReqPermEnabled"`
	WBEMIncomingAccess    bool     `plist:"WBEMIncomingAccessEnabled"`
}

// AllUsersPrivileges decodes the ARD_AllLocalUsersPrivs mask. A nil set
// means the key is not present.
func (p *Preferences) AllUsersPrivileges() (naprivs.Privileges, error) {
	if p.AllLocalUsersPrivs == "" {
		return nil, nil
	}
	mask, err := naprivs.ParseMask(p.AllLocalUsersPrivs)
	if err != nil {
		return nil, err
	}
	return naprivs.Decode(mask), nil
}

// Preferences reads the com.apple.RemoteManagement preference domain. A
// missing plist yields zero-value preferences.
func (c *Client) Preferences() (*Preferences, error) {
	prefs := &Preferences{}

	f, err := os.Open(c.preferencesFile)
	if errors.Is(err, os.ErrNotExist) {
		return prefs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening remote management preferences: %w", err)
	}
	defer f.Close()

	if err := plist.NewDecoder(f).Decode(prefs); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", c.preferencesFile, err)
	}
	return prefs, nil
}

// WritePreferences replaces the com.apple.RemoteManagement preference domain.
func (c *Client) WritePreferences(prefs *Preferences) error {
	data, err := plist.MarshalIndent(prefs, plist.XMLFormat, "\t")
	if err != nil {
		return fmt.Errorf("encoding remote management preferences: %w", err)
	}
	if err := os.WriteFile(c.preferencesFile, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", c.preferencesFile, err)
	}
	return nil
}
