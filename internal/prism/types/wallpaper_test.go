package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismwall/prismd/internal/prism/types"
)

func TestParseSlot(t *testing.T) {
	cases := map[string]types.Slot{
		"1":      types.SlotSystem,
		"2":      types.SlotLock,
		"system": types.SlotSystem,
		"home":   types.SlotSystem,
		" LOCK ": types.SlotLock,
	}
	for in, want := range cases {
		got, err := types.ParseSlot(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "0", "3", "-1", "desktop"} {
		_, err := types.ParseSlot(bad)
		assert.ErrorIs(t, err, types.ErrInvalidSlot, bad)
	}
}

func TestApprovalMessage_Valid(t *testing.T) {
	ok := types.ApprovalMessage{Action: types.ApprovalAction, NotificationID: 7, Caller: "com.evil.app"}
	assert.True(t, ok.Valid())

	zeroID := ok
	zeroID.NotificationID = 0
	assert.False(t, zeroID.Valid())

	noCaller := ok
	noCaller.Caller = " "
	assert.False(t, noCaller.Valid())

	wrongAction := ok
	wrongAction.Action = "other"
	assert.False(t, wrongAction.Valid())
}
