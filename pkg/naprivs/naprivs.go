// Package naprivs converts between the signed 64-bit Remote Management
// privilege mask stored in the directory service "naprivs" attribute and a
// symbolic set of privilege names.
//
// The directory service renders the mask as a signed decimal string. The
// upper 32 bits are always 0xFFFFFFFF, the top byte of the lower 32 bits
// records whether observed users see an indicator (0xC0 yes, 0x80 no), and
// the low byte holds one bit per capability. For example 0xFFFFFFFFC00000FF
// (-1073741569) is every capability with notification, and
// 0xFFFFFFFF80000000 (-2147483648) is no capabilities, hidden.
package naprivs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Mask is the raw privilege value as stored in the naprivs attribute: a
// signed 64-bit integer whose upper 32 bits are always set.
type Mask int64

// Privilege is a symbolic privilege name as typed by an operator.
type Privilege string

const (
	// Text allows sending text messages to the remote session.
	Text Privilege = "text"
	// ControlObserve allows controlling and observing the screen.
	ControlObserve Privilege = "control_observe"
	// Copy allows copying items to and from the remote host.
	Copy Privilege = "copy"
	// DeleteReplace allows deleting and replacing items.
	DeleteReplace Privilege = "delete_replace"
	// Reports allows generating reports.
	Reports Privilege = "reports"
	// Launch allows opening and quitting applications.
	Launch Privilege = "launch"
	// Settings allows changing system settings.
	Settings Privilege = "settings"
	// RestartShutdown allows restarting and shutting down the host.
	RestartShutdown Privilege = "restart_shutdown"
	// All is a shortcut for every privilege above.
	All Privilege = "all"
	// ObserveNotified shows the on-screen indicator while the user is
	// being observed.
	ObserveNotified Privilege = "observe_notified"
	// ObserveHidden observes without notifying the user. This is the
	// default when neither observe flag is given.
	ObserveHidden Privilege = "observe_hidden"
)

const (
	// base is the sign-extension marker present in every mask.
	base uint64 = 0xFFFFFFFF00000000

	// hiddenMask selects the byte that controls observation notification.
	hiddenMask uint64 = 0x00000000FF000000

	notifiedByte uint64 = 0xC0
	hiddenByte   uint64 = 0x80

	flagText            uint64 = 1 << 0
	flagControlObserve  uint64 = 1 << 1
	flagCopy            uint64 = 1 << 2
	flagDeleteReplace   uint64 = 1 << 3
	flagReports         uint64 = 1 << 4
	flagLaunch          uint64 = 1 << 5
	flagSettings        uint64 = 1 << 6
	flagRestartShutdown uint64 = 1 << 7

	flagAll = flagText | flagControlObserve | flagCopy | flagDeleteReplace |
		flagReports | flagLaunch | flagSettings | flagRestartShutdown
)

// flagOrder fixes the order capability names appear in formatted output.
var flagOrder = []Privilege{
	Text, ControlObserve, Copy, DeleteReplace,
	Reports, Launch, Settings, RestartShutdown,
}

var flags = map[Privilege]uint64{
	Text:            flagText,
	ControlObserve:  flagControlObserve,
	Copy:            flagCopy,
	DeleteReplace:   flagDeleteReplace,
	Reports:         flagReports,
	Launch:          flagLaunch,
	Settings:        flagSettings,
	RestartShutdown: flagRestartShutdown,
}

// Privileges is a set of symbolic privilege names.
type Privileges map[Privilege]bool

// Set builds a Privileges set from the given names.
func Set(privs ...Privilege) Privileges {
	set := make(Privileges, len(privs))
	for _, p := range privs {
		set[p] = true
	}
	return set
}

// Equal reports whether two sets contain the same privileges.
func (p Privileges) Equal(other Privileges) bool {
	if len(p) != len(other) {
		return false
	}
	for name := range p {
		if !other[name] {
			return false
		}
	}
	return true
}

// Notified reports whether the set carries the observe_notified flag.
func (p Privileges) Notified() bool {
	return p[ObserveNotified]
}

// Decode converts a raw privilege mask into its symbolic set. If every
// capability bit is set only the "all" shortcut is returned. Exactly one of
// observe_notified or observe_hidden is always present.
//
// Decode tests bit containment rather than equality, so distinct masks can
// decode to the same set: round trips through Encode are only guaranteed to
// preserve the symbolic set, not the raw integer.
func Decode(mask Mask) Privileges {
	m := uint64(mask)
	privs := Privileges{}

	if m&flagAll == flagAll {
		privs[All] = true
	} else {
		for _, name := range flagOrder {
			flag := flags[name]
			if m&flag == flag {
				privs[name] = true
			}
		}
	}

	if notified(m) {
		privs[ObserveNotified] = true
	} else {
		privs[ObserveHidden] = true
	}

	return privs
}

// notified inspects the top byte of the low 32 bits: 0xC0 means the user is
// shown an indicator while observed, 0x80 means observation is hidden.
func notified(m uint64) bool {
	b := (m & hiddenMask) >> 24
	return b&notifiedByte == notifiedByte
}

// Encode converts a symbolic privilege set into the raw mask. The "all"
// shortcut supersedes any individually listed capabilities. When neither
// observe flag is present the user is not notified.
func Encode(privs Privileges) Mask {
	var bits uint64
	if privs[All] {
		bits = flagAll
	} else {
		for name, flag := range flags {
			if privs[name] {
				bits |= flag
			}
		}
	}

	notify := hiddenByte << 24
	if privs[ObserveNotified] {
		notify = notifiedByte << 24
	}

	// The int64 conversion folds the raw value into two's-complement
	// signed range, which is how the directory service stores it.
	return Mask(base | notify | bits)
}

// ParseMask parses the signed decimal string form of the naprivs attribute.
func ParseMask(s string) (Mask, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing naprivs value %q: %w", s, err)
	}
	return Mask(v), nil
}

// String renders the mask in its directory-service form, e.g. "-1073741824".
func (m Mask) String() string {
	return strconv.FormatInt(int64(m), 10)
}

// Int64 returns the raw signed integer value.
func (m Mask) Int64() int64 {
	return int64(m)
}

// UnknownPrivilegeError reports a token that is not a recognized privilege
// name.
type UnknownPrivilegeError struct {
	Name string
}

func (e *UnknownPrivilegeError) Error() string {
	return fmt.Sprintf("unknown privilege name %q", e.Name)
}

func known(name Privilege) bool {
	if _, ok := flags[name]; ok {
		return true
	}
	return name == All || name == ObserveNotified || name == ObserveHidden
}

// Parse converts a comma-delimited privilege list, e.g.
// "settings,launch,copy", into a privilege set. Tokens are not trimmed;
// callers are responsible for clean input. Duplicates collapse. An empty
// string yields an empty set. An unrecognized token returns an
// UnknownPrivilegeError.
func Parse(csv string) (Privileges, error) {
	if csv == "" {
		return Privileges{}, nil
	}
	privs := Privileges{}
	for _, token := range strings.Split(csv, ",") {
		name := Privilege(token)
		if !known(name) {
			return nil, &UnknownPrivilegeError{Name: token}
		}
		privs[name] = true
	}
	return privs, nil
}

// ParseLenient is Parse without validation: unrecognized tokens are silently
// dropped. Existing directory data sometimes carries extraneous tokens, so
// lenient parsing is kept for compatibility with those records.
func ParseLenient(csv string) Privileges {
	privs := Privileges{}
	if csv == "" {
		return privs
	}
	for _, token := range strings.Split(csv, ",") {
		name := Privilege(token)
		if known(name) {
			privs[name] = true
		}
	}
	return privs
}

// Format renders a privilege set as a comma-delimited list. Capabilities come
// first in bit order, then "all", then the observe flag. The order is
// deterministic but not part of the contract.
func Format(privs Privileges) string {
	names := make([]string, 0, len(privs))
	for _, name := range flagOrder {
		if privs[name] {
			names = append(names, string(name))
		}
	}
	if privs[All] {
		names = append(names, string(All))
	}
	if privs[ObserveNotified] {
		names = append(names, string(ObserveNotified))
	}
	if privs[ObserveHidden] {
		names = append(names, string(ObserveHidden))
	}
	return strings.Join(names, ",")
}

// Names returns the sorted symbolic names in the set, for display.
func (p Privileges) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
