package dirman

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/waveseq/blockfile"
	"github.com/outofforest/waveseq/pkg/memstore"
	"github.com/outofforest/waveseq/samples"
)

func startElement(name string, attrs map[string]string) xml.StartElement {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	for k, v := range attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: k}, Value: v})
	}
	return start
}

func floatBuf(values []float32) []byte {
	buf := make([]byte, samples.BufferSize(len(values), samples.Float32))
	samples.FromFloats(values, buf, samples.Float32, len(values))
	return buf
}

func TestNewSimpleBlockFileHoldsOneReference(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	m := New(store)

	bf, err := m.NewSimpleBlockFile(floatBuf([]float32{0.5, -0.5}), 2, samples.Float32)
	requireT.NoError(err)
	requireT.Equal(1, m.RefCount(bf.Name()))
	requireT.Equal(1, store.Count())
}

func TestCopyBumpsReference(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	m := New(store)

	bf, err := m.NewSimpleBlockFile(floatBuf([]float32{0.5, -0.5}), 2, samples.Float32)
	requireT.NoError(err)

	bf2, err := m.CopyBlockFile(bf)
	requireT.NoError(err)
	requireT.Equal(bf.Name(), bf2.Name())
	requireT.Equal(2, m.RefCount(bf.Name()))
	requireT.Equal(1, store.Count())
}

func TestCopyOfLockedFileDeepCopies(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	m := New(store)

	bf, err := m.NewSimpleBlockFile(floatBuf([]float32{0.5, -0.5}), 2, samples.Float32)
	requireT.NoError(err)
	bf.Lock()

	bf2, err := m.CopyBlockFile(bf)
	requireT.NoError(err)
	requireT.NotEqual(bf.Name(), bf2.Name())
	requireT.Equal(1, m.RefCount(bf.Name()))
	requireT.Equal(1, m.RefCount(bf2.Name()))
	requireT.Equal(2, store.Count())

	buf := make([]byte, samples.BufferSize(2, samples.Float32))
	_, err = bf2.ReadData(buf, samples.Float32, 0, 2, true)
	requireT.NoError(err)
	out := make([]float32, 2)
	samples.ToFloats(buf, samples.Float32, out, 2)
	requireT.Equal([]float32{0.5, -0.5}, out)
}

func TestDerefDeletesAtZero(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	m := New(store)

	bf, err := m.NewSimpleBlockFile(floatBuf([]float32{0.5}), 1, samples.Float32)
	requireT.NoError(err)
	_, err = m.CopyBlockFile(bf)
	requireT.NoError(err)

	requireT.NoError(m.Deref(bf))
	requireT.Equal(1, store.Count())

	requireT.NoError(m.Deref(bf))
	requireT.Equal(0, store.Count())
	requireT.Equal(0, m.RefCount(bf.Name()))
}

func TestDerefKeepsLockedPayload(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	m := New(store)

	bf, err := m.NewSimpleBlockFile(floatBuf([]float32{0.5}), 1, samples.Float32)
	requireT.NoError(err)
	bf.Lock()

	requireT.NoError(m.Deref(bf))
	requireT.Equal(1, store.Count())
}

func TestCopySharesBlocksWithoutPayload(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	m := New(store)

	silent := blockfile.NewSilent(16)
	bf, err := m.CopyBlockFile(silent)
	requireT.NoError(err)
	requireT.Equal(blockfile.BlockFile(silent), bf)
}

func TestHandleXMLChildRestoresSimple(t *testing.T) {
	requireT := require.New(t)

	store := memstore.New()
	m := New(store)

	bf, err := m.NewSimpleBlockFile(floatBuf([]float32{0.5, -0.5}), 2, samples.Float32)
	requireT.NoError(err)

	restored, err := m.HandleXMLChild(startElement("simpleblockfile", map[string]string{
		"name":   bf.Name(),
		"len":    "2",
		"format": "3",
	}), samples.Float32)
	requireT.NoError(err)
	requireT.Equal(2, restored.Length())
	requireT.Equal(2, m.RefCount(bf.Name()))
}

func TestHandleXMLChildRestoresSilent(t *testing.T) {
	requireT := require.New(t)

	m := New(memstore.New())

	bf, err := m.HandleXMLChild(startElement("silentblockfile", map[string]string{
		"len": "42",
	}), samples.Float32)
	requireT.NoError(err)
	requireT.Equal(42, bf.Length())
	requireT.Equal("", bf.Name())
}

func TestHandleXMLChildRejectsBadInput(t *testing.T) {
	requireT := require.New(t)

	m := New(memstore.New())

	_, err := m.HandleXMLChild(startElement("silentblockfile", map[string]string{
		"len": "-1",
	}), samples.Float32)
	requireT.Error(err)

	_, err = m.HandleXMLChild(startElement("simpleblockfile", map[string]string{
		"name": "missing-payload",
	}), samples.Float32)
	requireT.Error(err)

	_, err = m.HandleXMLChild(startElement("nosuchblockfile", nil), samples.Float32)
	requireT.Error(err)
}
