package units

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	statuses []dbus.UnitStatus
	since    map[string]uint64
	pids     map[string]uint32
	listErr  error
}

func (f *fakeBus) ListUnitsByNamesContext(_ context.Context, names []string) ([]dbus.UnitStatus, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []dbus.UnitStatus
	for _, n := range names {
		found := false
		for _, st := range f.statuses {
			if st.Name == n {
				out = append(out, st)
				found = true
			}
		}
		if !found {
			out = append(out, dbus.UnitStatus{Name: n, LoadState: "not-found", ActiveState: "inactive", SubState: "dead"})
		}
	}
	return out, nil
}

func (f *fakeBus) GetUnitPropertyContext(_ context.Context, unit, name string) (*dbus.Property, error) {
	v, ok := f.since[unit]
	if !ok || name != "ActiveEnterTimestamp" {
		return nil, errors.New("no such property")
	}
	return &dbus.Property{Name: name, Value: godbus.MakeVariant(v)}, nil
}

func (f *fakeBus) GetUnitTypePropertiesContext(_ context.Context, unit, unitType string) (map[string]any, error) {
	if unitType != "Service" {
		return nil, errors.New("wrong type")
	}
	return map[string]any{"MainPID": f.pids[unit]}, nil
}

func (f *fakeBus) Close() {}

func TestStates(t *testing.T) {
	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &Client{conn: &fakeBus{
		statuses: []dbus.UnitStatus{
			{Name: "sshd.service", Description: "OpenSSH", LoadState: "loaded", ActiveState: "active", SubState: "running"},
			{Name: "tmp.mount", LoadState: "loaded", ActiveState: "active", SubState: "mounted"},
		},
		since: map[string]uint64{"sshd.service": uint64(since.UnixMicro())},
		pids:  map[string]uint32{"sshd.service": 812},
	}}

	states, err := c.States(context.Background(), []string{"tmp.mount", "sshd.service", "gone.service"})
	require.NoError(t, err)
	require.Len(t, states, 3)

	assert.Equal(t, "gone.service", states[0].Name)
	assert.False(t, states[0].Loaded())
	assert.Equal(t, "gone.service (not found)", states[0].String())

	ssh := states[1]
	assert.Equal(t, "OpenSSH", ssh.Description)
	assert.Equal(t, uint32(812), ssh.MainPID)
	assert.True(t, since.Equal(ssh.Since))
	assert.Equal(t, "sshd.service active/running", ssh.String())

	assert.Equal(t, "tmp.mount", states[2].Name)
	assert.Zero(t, states[2].MainPID)
	assert.True(t, states[2].Since.IsZero())
}

func TestStatesErrors(t *testing.T) {
	c := &Client{conn: &fakeBus{listErr: errors.New("bus down")}}
	_, err := c.States(context.Background(), []string{"a.service"})
	assert.ErrorContains(t, err, "bus down")

	states, err := c.States(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, states)
	assert.NoError(t, c.Close())
}
