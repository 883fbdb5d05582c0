package edgeblock

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hlsf/lattice/core"
)

func randomRows(n int, withFlags bool) []Row {
	rng := rand.New(rand.NewSource(int64(n)))
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			NeighborID: core.TokenID(rng.Uint32()),
			Type:       core.RelationType(rng.Intn(1 << 16)),
			Weight:     rng.Uint32(),
			LastSeen:   rng.Uint32(),
		}
		if withFlags {
			rows[i].Flags = uint8(rng.Intn(256))
		}
	}
	return rows
}

func TestRawRoundTrip(t *testing.T) {
	for _, count := range []int{0, 1, 2, 7, 255, 4096, BlockMax} {
		for _, withFlags := range []bool{false, true} {
			block := &Block{
				TokenID:   42,
				Part:      3,
				Rows:      randomRows(count, withFlags),
				WithFlags: withFlags,
			}

			data, err := Raw{}.Encode(block)
			require.NoError(t, err)

			got, err := Raw{}.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, block.TokenID, got.TokenID)
			assert.Equal(t, block.Part, got.Part)
			assert.Equal(t, block.WithFlags, got.WithFlags)
			require.Equal(t, count, got.Count())
			for i := range block.Rows {
				assert.Equal(t, block.Rows[i], got.Rows[i])
			}
		}
	}
}

func TestGzipRoundTrip(t *testing.T) {
	block := &Block{TokenID: 7, Part: 0, Rows: randomRows(512, true), WithFlags: true}

	data, err := Gzip{}.Encode(block)
	require.NoError(t, err)

	got, err := Gzip{}.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, block.Rows, got.Rows)
}

func TestGzipDecodeFallsBackToRaw(t *testing.T) {
	// Blocks written before compression was enabled must stay readable.
	block := &Block{TokenID: 9, Part: 1, Rows: randomRows(16, false)}

	raw, err := Raw{}.Encode(block)
	require.NoError(t, err)

	got, err := Gzip{}.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, block.Rows, got.Rows)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	block := &Block{TokenID: 1, Part: 0, Rows: randomRows(100, false)}
	data, err := Raw{}.Encode(block)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "short prefix", data: data[:3]},
		{name: "missing header", data: data[:4]},
		{name: "missing columns", data: data[:len(data)-7]},
		{name: "count overflows body", data: data[:len(data)/2]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Raw{}.Decode(tt.data)
			require.ErrorIs(t, err, ErrCorruptBlock)
		})
	}
}

func TestDecodeRejectsBadHeader(t *testing.T) {
	block := &Block{TokenID: 1, Part: 0, Rows: randomRows(4, false)}
	data, err := Raw{}.Encode(block)
	require.NoError(t, err)

	// Corrupt the JSON header in place.
	data[5] ^= 0xff
	_, err = Raw{}.Decode(data)
	require.ErrorIs(t, err, ErrCorruptBlock)
}

func TestEncodeRejectsOversizedBlock(t *testing.T) {
	block := &Block{TokenID: 1, Rows: make([]Row, BlockMax+1)}
	_, err := Raw{}.Encode(block)
	require.Error(t, err)
}

func TestSplit(t *testing.T) {
	t.Run("empty yields single empty part", func(t *testing.T) {
		blocks := Split(5, nil, false)
		require.Len(t, blocks, 1)
		assert.Equal(t, uint32(0), blocks[0].Part)
		assert.Zero(t, blocks[0].Count())
	})

	t.Run("block max plus one", func(t *testing.T) {
		rows := make([]Row, BlockMax+1)
		blocks := Split(5, rows, false)
		require.Len(t, blocks, 2)
		assert.Equal(t, BlockMax, blocks[0].Count())
		assert.Equal(t, 1, blocks[1].Count())
		assert.Equal(t, uint32(0), blocks[0].Part)
		assert.Equal(t, uint32(1), blocks[1].Part)
	})
}

func TestByName(t *testing.T) {
	for _, name := range []string{"raw", "gzip"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("lz4")
	assert.False(t, ok)
}
