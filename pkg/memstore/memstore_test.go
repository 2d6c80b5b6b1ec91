package memstore

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCreateReadRemove(t *testing.T) {
	requireT := require.New(t)

	ms := New()
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	requireT.NoError(ms.Create("b0", data))
	requireT.Equal(1, ms.Count())

	size, err := ms.Size("b0")
	requireT.NoError(err)
	requireT.Equal(int64(8), size)

	p := make([]byte, 4)
	requireT.NoError(ms.ReadAt("b0", p, 2))
	requireT.Equal([]byte{3, 4, 5, 6}, p)

	requireT.NoError(ms.Remove("b0"))
	requireT.Equal(0, ms.Count())
	_, err = ms.Size("b0")
	requireT.Error(err)
}

func TestCreateRefusesOverwrite(t *testing.T) {
	requireT := require.New(t)

	ms := New()
	requireT.NoError(ms.Create("b0", []byte{1}))
	requireT.Error(ms.Create("b0", []byte{2}))
}

func TestCreateCopiesData(t *testing.T) {
	requireT := require.New(t)

	ms := New()
	data := []byte{1, 2, 3}
	requireT.NoError(ms.Create("b0", data))
	data[0] = 99

	p := make([]byte, 3)
	requireT.NoError(ms.ReadAt("b0", p, 0))
	requireT.Equal([]byte{1, 2, 3}, p)
}

func TestReadAtOutOfRange(t *testing.T) {
	requireT := require.New(t)

	ms := New()
	requireT.NoError(ms.Create("b0", []byte{1, 2, 3}))

	p := make([]byte, 2)
	requireT.Error(ms.ReadAt("b0", p, 2))
	requireT.Error(ms.ReadAt("missing", p, 0))
}

func TestFaultInjection(t *testing.T) {
	requireT := require.New(t)

	ms := New()
	ms.CreateErr = errors.New("injected")
	ms.CreateBudget = 1

	requireT.NoError(ms.Create("b0", []byte{1}))
	requireT.Error(ms.Create("b1", []byte{2}))

	ms.CreateErr = nil
	requireT.NoError(ms.Create("b1", []byte{2}))

	ms.ReadErr = errors.New("injected")
	p := make([]byte, 1)
	requireT.Error(ms.ReadAt("b0", p, 0))
}
