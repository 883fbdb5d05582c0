package edgeblock

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/hlsf/lattice/core"
)

// ErrCorruptBlock indicates a malformed or truncated block record.
//
// A corrupt block must be treated as unreadable; it is never partially
// decoded and nothing reads out of bounds. Running GC removes blocks that
// can no longer be decoded to an edge set.
var ErrCorruptBlock = errors.New("edgeblock: corrupt block")

// Column names in fixed persistence order.
const (
	colNeighbor = "neighbor"
	colType     = "type"
	colWeight   = "weight"
	colLastSeen = "lastSeen"
	colFlags    = "flags"
)

// Codec encodes and decodes edge blocks.
//
// Implementations must be safe for concurrent use. The codec is a
// breaking-change boundary: bytes written by one codec must stay readable
// by the codec selected at store construction (Gzip reads Raw output).
type Codec interface {
	Encode(b *Block) ([]byte, error)
	Decode(data []byte) (*Block, error)
	Name() string
}

// header is the JSON block header preceding the column data.
type header struct {
	V       int      `json:"v"`
	TokenID uint32   `json:"tokenId"`
	Part    uint32   `json:"part"`
	Count   int      `json:"count"`
	Cols    []string `json:"cols"`
}

// Raw is the uncompressed columnar codec.
//
// Layout: a 4-byte little-endian header length, the JSON header, then each
// column's raw little-endian bytes concatenated in fixed order
// (neighbor u32, type u16, weight u32, lastSeen u32, optional flags u8).
type Raw struct{}

// Name returns the stable codec name ("raw").
func (Raw) Name() string { return "raw" }

// Encode serializes the block.
func (Raw) Encode(b *Block) ([]byte, error) {
	if len(b.Rows) > BlockMax {
		return nil, fmt.Errorf("edgeblock: %d rows exceeds block max %d", len(b.Rows), BlockMax)
	}

	cols := []string{colNeighbor, colType, colWeight, colLastSeen}
	if b.WithFlags {
		cols = append(cols, colFlags)
	}
	hdr, err := json.Marshal(header{
		V:       SchemaVersion,
		TokenID: uint32(b.TokenID),
		Part:    b.Part,
		Count:   len(b.Rows),
		Cols:    cols,
	})
	if err != nil {
		return nil, err
	}

	n := len(b.Rows)
	out := make([]byte, 0, 4+len(hdr)+n*rowWidth(b.WithFlags))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(hdr)))
	out = append(out, hdr...)

	for _, r := range b.Rows {
		out = binary.LittleEndian.AppendUint32(out, uint32(r.NeighborID))
	}
	for _, r := range b.Rows {
		out = binary.LittleEndian.AppendUint16(out, uint16(r.Type))
	}
	for _, r := range b.Rows {
		out = binary.LittleEndian.AppendUint32(out, r.Weight)
	}
	for _, r := range b.Rows {
		out = binary.LittleEndian.AppendUint32(out, r.LastSeen)
	}
	if b.WithFlags {
		for _, r := range b.Rows {
			out = append(out, r.Flags)
		}
	}
	return out, nil
}

// Decode deserializes a block, rejecting records whose declared count does
// not fit the remaining byte length.
func (Raw) Decode(data []byte) (*Block, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: short length prefix", ErrCorruptBlock)
	}
	hlen := int(binary.LittleEndian.Uint32(data[:4]))
	if hlen < 2 || 4+hlen > len(data) {
		return nil, fmt.Errorf("%w: header length %d out of range", ErrCorruptBlock, hlen)
	}

	var hdr header
	if err := json.Unmarshal(data[4:4+hlen], &hdr); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptBlock, err)
	}
	if hdr.V != SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrCorruptBlock, hdr.V)
	}
	if hdr.Count < 0 || hdr.Count > BlockMax {
		return nil, fmt.Errorf("%w: count %d out of range", ErrCorruptBlock, hdr.Count)
	}
	withFlags := slices.Contains(hdr.Cols, colFlags)
	body := data[4+hlen:]
	if len(body) < hdr.Count*rowWidth(withFlags) {
		return nil, fmt.Errorf("%w: %d rows do not fit %d bytes", ErrCorruptBlock, hdr.Count, len(body))
	}

	n := hdr.Count
	rows := make([]Row, n)
	off := 0
	for i := 0; i < n; i++ {
		rows[i].NeighborID = core.TokenID(binary.LittleEndian.Uint32(body[off+i*4:]))
	}
	off += n * 4
	for i := 0; i < n; i++ {
		rows[i].Type = core.RelationType(binary.LittleEndian.Uint16(body[off+i*2:]))
	}
	off += n * 2
	for i := 0; i < n; i++ {
		rows[i].Weight = binary.LittleEndian.Uint32(body[off+i*4:])
	}
	off += n * 4
	for i := 0; i < n; i++ {
		rows[i].LastSeen = binary.LittleEndian.Uint32(body[off+i*4:])
	}
	off += n * 4
	if withFlags {
		for i := 0; i < n; i++ {
			rows[i].Flags = body[off+i]
		}
	}

	return &Block{
		TokenID:   core.TokenID(hdr.TokenID),
		Part:      hdr.Part,
		Rows:      rows,
		WithFlags: withFlags,
	}, nil
}

func rowWidth(withFlags bool) int {
	w := 4 + 2 + 4 + 4
	if withFlags {
		w++
	}
	return w
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "raw":
		return Raw{}, true
	case "gzip":
		return Gzip{}, true
	default:
		return nil, false
	}
}
