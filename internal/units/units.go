// Package units looks up the systemd state of units named in the journal.
package units

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
)

// State is what the service manager reports about one unit.
type State struct {
	Name        string
	Description string
	LoadState   string
	ActiveState string
	SubState    string
	// Since is when the unit last entered the active state.
	Since   time.Time
	MainPID uint32
}

// Loaded reports whether systemd knows the unit at all.
func (s State) Loaded() bool {
	return s.LoadState != "" && s.LoadState != "not-found"
}

func (s State) String() string {
	if !s.Loaded() {
		return s.Name + " (not found)"
	}
	return fmt.Sprintf("%s %s/%s", s.Name, s.ActiveState, s.SubState)
}

// bus is the part of *dbus.Conn used here.
type bus interface {
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	GetUnitPropertyContext(ctx context.Context, unit, propertyName string) (*dbus.Property, error)
	GetUnitTypePropertiesContext(ctx context.Context, unit, unitType string) (map[string]any, error)
	Close()
}

// Client queries one service manager over D-Bus.
type Client struct {
	conn bus
}

// Connect connects to the system manager, or to the calling user's manager
// when user is set.
func Connect(ctx context.Context, user bool) (*Client, error) {
	var conn *dbus.Conn
	var err error
	if user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to systemd: %w", err)
	}
	return &Client{conn: conn}, nil
}

// ConnectAddress connects to the manager behind a D-Bus address such as
// "unix:path=/run/systemd/private".
func ConnectAddress(ctx context.Context, address string) (*Client, error) {
	conn, err := dbus.NewConnection(func() (*godbus.Conn, error) {
		c, err := godbus.Dial(address, godbus.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if err := c.Auth(nil); err != nil {
			c.Close()
			return nil, err
		}
		// The private socket is peer to peer; there is no bus to greet.
		if strings.HasSuffix(address, "/run/systemd/private") {
			return c, nil
		}
		if err := c.Hello(); err != nil {
			c.Close()
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to systemd at %s: %w", address, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	c.conn.Close()
	return nil
}

// States returns the state of each named unit, sorted by name. Units
// systemd does not know are returned with LoadState "not-found".
func (c *Client) States(ctx context.Context, names []string) ([]State, error) {
	if len(names) == 0 {
		return nil, nil
	}
	statuses, err := c.conn.ListUnitsByNamesContext(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}

	out := make([]State, 0, len(statuses))
	for _, st := range statuses {
		s := State{
			Name:        st.Name,
			Description: st.Description,
			LoadState:   st.LoadState,
			ActiveState: st.ActiveState,
			SubState:    st.SubState,
		}
		if s.Loaded() {
			c.details(ctx, &s)
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b State) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// details fills in optional properties. Missing ones are left zero.
func (c *Client) details(ctx context.Context, s *State) {
	if p, err := c.conn.GetUnitPropertyContext(ctx, s.Name, "ActiveEnterTimestamp"); err == nil {
		if usec, ok := variantUint64(p.Value); ok && usec > 0 {
			s.Since = time.UnixMicro(int64(usec))
		}
	}
	if !strings.HasSuffix(s.Name, ".service") {
		return
	}
	props, err := c.conn.GetUnitTypePropertiesContext(ctx, s.Name, "Service")
	if err != nil {
		return
	}
	if pid, ok := props["MainPID"].(uint32); ok {
		s.MainPID = pid
	}
}

func variantUint64(v godbus.Variant) (uint64, bool) {
	var n uint64
	if err := v.Store(&n); err != nil {
		return 0, false
	}
	return n, true
}
