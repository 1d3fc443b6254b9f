package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutPlant(t *testing.T) {
	_, caller, a := buildWorld()
	lay := a.Layout()

	require.NoError(t, a.PutPlant(3, 5, 2))

	require.Len(t, caller.calls, 1)
	call := caller.calls[0]
	assert.Equal(t, lay.Routines["put_plant"].Addr, call.addr)
	assert.Equal(t, uint64(fakeBoard), call.regs["ecx"])
	assert.Equal(t, uint64(3), call.regs["eax"])
	// Push order: imitator marker, type, column.
	assert.Equal(t, []uint64{^uint64(0), 2, 5}, call.stack)
}

func TestPutPlantWithNoGameLoaded(t *testing.T) {
	mem, caller, a := buildWorld()
	unloadGame(mem, a.Layout())

	assert.ErrorIs(t, a.PutPlant(3, 5, 2), ErrUnavailable)
	assert.Empty(t, caller.calls)
}

func TestShovel(t *testing.T) {
	mem, caller, a := buildWorld()
	lay := a.Layout()
	rec := addPlant(mem, lay, 1, 3, 5)

	require.NoError(t, a.Shovel(3, 5))

	require.Len(t, caller.calls, 1)
	call := caller.calls[0]
	assert.Equal(t, lay.Routines["shovel"].Addr, call.addr)
	assert.Equal(t, []uint64{rec}, call.stack)
}

func TestShovelWithoutMatch(t *testing.T) {
	mem, caller, a := buildWorld()
	addPlant(mem, a.Layout(), 1, 2, 2)

	assert.ErrorIs(t, a.Shovel(3, 5), ErrNotFound)
	assert.Empty(t, caller.calls)
}

func TestShovelRemovesTheMatchedPlant(t *testing.T) {
	mem, caller, a := buildWorld()
	lay := a.Layout()
	rec := addPlant(mem, lay, 1, 3, 5)

	// Emulate the target's removal routine: the record goes dead.
	caller.onCall = func(c fakeCall) {
		require.Equal(t, []uint64{rec}, c.stack)
		mem.setByte(rec+lay.Offsets.PlantDead, 1)
	}

	require.Equal(t, 1, a.PlantCount())
	require.NoError(t, a.Shovel(3, 5))
	assert.Equal(t, 0, a.PlantCount())
}

func TestFireCobIsUnsupported(t *testing.T) {
	_, caller, a := buildWorld()

	assert.ErrorIs(t, a.FireCob(100, 200), ErrUnsupported)
	assert.Empty(t, caller.calls)
}

func TestChooseCard(t *testing.T) {
	mem, caller, a := buildWorld()
	lay := a.Layout()
	mem.setUint32(fakeBaseObj+lay.Offsets.GameUI, UISeedChooser)

	require.NoError(t, a.ChooseCard(14))

	require.Len(t, caller.calls, 1)
	call := caller.calls[0]
	assert.Equal(t, lay.Routines["choose_card"].Addr, call.addr)
	slot := uint64(fakeChooser) + lay.Offsets.CardBase + 14*lay.Offsets.CardStride
	assert.Equal(t, []uint64{slot}, call.stack)
}

func TestChooseCardOutsideSeedChooser(t *testing.T) {
	_, caller, a := buildWorld()

	assert.ErrorIs(t, a.ChooseCard(14), ErrBadPhase)
	assert.Empty(t, caller.calls)
}

func TestRock(t *testing.T) {
	mem, caller, a := buildWorld()
	lay := a.Layout()
	mem.setUint32(fakeBaseObj+lay.Offsets.GameUI, UISeedChooser)

	require.NoError(t, a.Rock())

	require.Len(t, caller.calls, 1)
	call := caller.calls[0]
	assert.Equal(t, lay.Routines["rock"].Addr, call.addr)
	assert.Equal(t, uint64(fakeChooser), call.regs["ebx"])
	assert.Equal(t, uint64(fakeBaseObj), call.regs["esi"])
	assert.Equal(t, uint64(1), call.regs["edi"])
	assert.Equal(t, uint64(1), call.regs["ebp"])
}

func TestRockOutsideSeedChooser(t *testing.T) {
	_, caller, a := buildWorld()

	assert.ErrorIs(t, a.Rock(), ErrBadPhase)
	assert.Empty(t, caller.calls)
}

func TestBackToMain(t *testing.T) {
	mem, caller, a := buildWorld()
	lay := a.Layout()

	require.NoError(t, a.BackToMain())
	require.Len(t, caller.calls, 1)
	assert.Equal(t, lay.Routines["back_to_main"].Addr, caller.calls[0].addr)

	// Not legal from the menu.
	caller.calls = nil
	mem.setUint32(fakeBaseObj+lay.Offsets.GameUI, 1)
	assert.ErrorIs(t, a.BackToMain(), ErrBadPhase)
	assert.Empty(t, caller.calls)
}

func TestEnterGame(t *testing.T) {
	_, caller, a := buildWorld()
	lay := a.Layout()

	require.NoError(t, a.EnterGame(70))

	require.Len(t, caller.calls, 1)
	call := caller.calls[0]
	assert.Equal(t, lay.Routines["enter_game"].Addr, call.addr)
	assert.Equal(t, uint64(fakeBaseObj), call.regs["esi"])
	assert.Equal(t, []uint64{1, 70}, call.stack)
}

func TestMakeNewBoard(t *testing.T) {
	_, caller, a := buildWorld()
	lay := a.Layout()

	require.NoError(t, a.MakeNewBoard())
	require.Len(t, caller.calls, 1)
	assert.Equal(t, lay.Routines["make_new_board"].Addr, caller.calls[0].addr)
	assert.Equal(t, uint64(fakeBaseObj), caller.calls[0].regs["ecx"])
}

func TestSetSpeed(t *testing.T) {
	mem, _, a := buildWorld()
	lay := a.Layout()

	require.NoError(t, a.SetSpeed(1))
	assert.Equal(t, uint32(1), mem.getUint32(fakeBaseObj+lay.Offsets.TickMs))

	// Clamped on both ends.
	require.NoError(t, a.SetSpeed(0))
	assert.Equal(t, uint32(1), mem.getUint32(fakeBaseObj+lay.Offsets.TickMs))
	require.NoError(t, a.SetSpeed(100000))
	assert.Equal(t, uint32(1000), mem.getUint32(fakeBaseObj+lay.Offsets.TickMs))

	unloadGame(mem, lay)
	assert.ErrorIs(t, a.SetSpeed(10), ErrUnavailable)
}

func TestResolveOperand(t *testing.T) {
	env := map[string]uint64{"board": 0x20000}
	args := []uint64{7, 8}

	v, err := resolveOperand("board", env, args)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x20000), v)

	v, err = resolveOperand("arg1", env, args)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), v)

	v, err = resolveOperand("-1", env, args)
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), v)

	v, err = resolveOperand("0x44F5F0", env, args)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x44F5F0), v)

	_, err = resolveOperand("arg5", env, args)
	assert.Error(t, err)
	_, err = resolveOperand("chooser", env, args)
	assert.Error(t, err)
}
