// Package elem defines the metadata records of the array: files and their
// blocks, links, empty directories, disk mappings and content locations.
package elem

import "github.com/zeebo/blake3"

// HashSize is the number of digest bytes kept per block.
const HashSize = 16

// BlockState is owned by the parity subsystem; it is only stored here.
type BlockState uint8

const (
	BlockStateEmpty   BlockState = iota // no file data
	BlockStateBlk                       // hash and parity computed
	BlockStateChg                       // hash unknown, parity outdated
	BlockStateRep                       // hash known, parity outdated
	BlockStateDeleted                   // file removed, parity still covers it
)

var blockStateNames = [...]string{
	BlockStateEmpty:   "empty",
	BlockStateBlk:     "blk",
	BlockStateChg:     "chg",
	BlockStateRep:     "rep",
	BlockStateDeleted: "deleted",
}

func (s BlockState) String() string {
	if int(s) < len(blockStateNames) {
		return blockStateNames[s]
	}
	return "unknown"
}

// Hash is a truncated block content digest.
type Hash [HashSize]byte

// HashInvalid is the placeholder for a block whose content was never hashed.
var HashInvalid = Hash{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// IsInvalid reports whether h is the never-hashed placeholder.
func (h Hash) IsInvalid() bool {
	return h == HashInvalid
}

// HashBlock computes the BLAKE3 digest of a block, truncated to HashSize.
func HashBlock(data []byte) Hash {
	sum := blake3.Sum256(data)
	var h Hash
	copy(h[:], sum[:HashSize])
	return h
}

// Block is the per-block metadata entry of a file.
type Block struct {
	State BlockState
	Hash  Hash
}
