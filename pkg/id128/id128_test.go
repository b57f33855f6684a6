package id128

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const coredumpMessageID = "fc2e22bc6ee647b6b90729ab34a250b1"

func TestParsePlainAndUUID(t *testing.T) {
	plain, err := Parse(coredumpMessageID)
	require.NoError(t, err)
	assert.Equal(t, coredumpMessageID, plain.String())

	dashed, err := Parse("fc2e22bc-6ee6-47b6-b907-29ab34a250b1")
	require.NoError(t, err)
	assert.Equal(t, plain, dashed)
	assert.Equal(t, "fc2e22bc-6ee6-47b6-b907-29ab34a250b1", plain.UUIDString())

	upper, err := Parse("FC2E22BC6EE647B6B90729AB34A250B1")
	require.NoError(t, err)
	assert.Equal(t, plain, upper)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{
		"",
		"fc2e22bc",
		"zz2e22bc6ee647b6b90729ab34a250b1",
		"fc2e22bc_6ee6_47b6_b907_29ab34a250b1",
		coredumpMessageID + "00",
	} {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrInvalid, "input %q", s)
	}
}

func TestNull(t *testing.T) {
	assert.True(t, Null.IsNull())
	assert.Equal(t, "00000000000000000000000000000000", Null.String())
	assert.False(t, MustParse(coredumpMessageID).IsNull())
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("nope") })
}

func TestTextRoundTripThroughJSON(t *testing.T) {
	type doc struct {
		Boot ID128 `json:"boot"`
	}
	in := doc{Boot: MustParse(coredumpMessageID)}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"boot":"`+coredumpMessageID+`"}`, string(b))

	var out doc
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestRandomIsVersion4(t *testing.T) {
	a, err := Random()
	require.NoError(t, err)
	b, err := Random()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, byte(0x40), a[6]&0xf0)
	assert.Equal(t, byte(0x80), a[8]&0xc0)
}

func TestMachineAndBootID(t *testing.T) {
	if _, err := os.Stat("/etc/machine-id"); err != nil {
		t.Skip("no /etc/machine-id on this host")
	}
	machine, err := MachineID()
	require.NoError(t, err)
	assert.False(t, machine.IsNull())

	boot, err := BootID()
	require.NoError(t, err)
	assert.False(t, boot.IsNull())
	assert.NotEqual(t, machine, boot)
}

func TestInvocationIDOutsideUnit(t *testing.T) {
	if os.Getenv("INVOCATION_ID") != "" {
		t.Skip("running inside a systemd unit")
	}
	_, err := InvocationID()
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.ENXIO)
}
