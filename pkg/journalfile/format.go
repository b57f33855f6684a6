package journalfile

import (
	"encoding/binary"

	"github.com/mbrock/sdjournal/pkg/id128"
)

// ID128 is the identifier type used for file, machine, boot and seqnum ids.
type ID128 = id128.ID128

var le = binary.LittleEndian

// Signature is the magic at the start of every journal file.
var Signature = [8]byte{'L', 'P', 'K', 'S', 'H', 'H', 'R', 'H'}

const (
	objectUnused uint8 = iota
	objectData
	objectField
	objectEntry
	objectDataHashTable
	objectFieldHashTable
	objectEntryArray
	objectTag
)

// Object flags on data objects.
const (
	objectCompressedXZ   uint8 = 1 << 0
	objectCompressedLZ4  uint8 = 1 << 1
	objectCompressedZSTD uint8 = 1 << 2
)

// Incompatible header flags. Readers refuse files carrying flags they
// do not know.
const (
	IncompatibleCompressedXZ   uint32 = 1 << 0
	IncompatibleCompressedLZ4  uint32 = 1 << 1
	IncompatibleKeyedHash      uint32 = 1 << 2
	IncompatibleCompressedZSTD uint32 = 1 << 3
	IncompatibleCompact        uint32 = 1 << 4
)

const (
	stateOffline  uint8 = 0
	stateOnline   uint8 = 1
	stateArchived uint8 = 2
)

// Header mirrors the on-disk file header as of systemd v254.
type Header struct {
	Signature         [8]byte
	CompatibleFlags   uint32
	IncompatibleFlags uint32
	State             uint8
	_                 [7]byte
	FileID            ID128
	MachineID         ID128
	TailEntryBootID   ID128
	SeqnumID          ID128

	HeaderSize           uint64
	ArenaSize            uint64
	DataHashTableOffset  uint64 // offset of the items, not the object
	DataHashTableSize    uint64 // in bytes
	FieldHashTableOffset uint64
	FieldHashTableSize   uint64
	TailObjectOffset     uint64
	NObjects             uint64
	NEntries             uint64
	TailEntrySeqnum      uint64
	HeadEntrySeqnum      uint64
	EntryArrayOffset     uint64
	HeadEntryRealtime    uint64
	TailEntryRealtime    uint64
	TailEntryMonotonic   uint64

	NData               uint64 // v187
	NFields             uint64
	NTags               uint64 // v189
	NEntryArrays        uint64
	DataHashChainDepth  uint64 // v246
	FieldHashChainDepth uint64

	TailEntryArrayOffset   uint32 // v252
	TailEntryArrayNEntries uint32
	TailEntryOffset        uint64 // v254
}

// HeaderSize is binary.Size(Header{}).
const HeaderSize = 272

type objectHeader struct {
	Type  uint8
	Flags uint8
	_     [6]byte
	Size  uint64 // header included, padding excluded
}

const objectHeaderSize = 16

type hashItem struct {
	Head uint64
	Tail uint64
}

const hashItemSize = 16

// hashedObject is the prefix shared by data and field objects, enough to
// walk a hash chain.
type hashedObject struct {
	Object         objectHeader
	Hash           uint64
	NextHashOffset uint64
}

type dataObject struct {
	Hashed           hashedObject
	NextFieldOffset  uint64
	EntryOffset      uint64
	EntryArrayOffset uint64
	NEntries         uint64
}

const dataObjectHeaderSize = objectHeaderSize + 48

// dataEntryRefs is the tail of dataObject that changes as entries link to it.
type dataEntryRefs struct {
	EntryOffset      uint64
	EntryArrayOffset uint64
	NEntries         uint64
}

const dataEntryRefsOffset = dataObjectHeaderSize - 24

type fieldObject struct {
	Hashed         hashedObject
	HeadDataOffset uint64
}

const fieldObjectHeaderSize = objectHeaderSize + 24

// Both hashed object kinds keep next_hash_offset right after the hash.
const nextHashFieldOffset = objectHeaderSize + 8

type entryItem struct {
	ObjectOffset uint64
	Hash         uint64
}

const entryItemSize = 16

type entryObject struct {
	Object    objectHeader
	Seqnum    uint64
	Realtime  uint64
	Monotonic uint64
	BootID    ID128
	XorHash   uint64
}

const entryObjectHeaderSize = objectHeaderSize + 48

type entryArrayObject struct {
	Object               objectHeader
	NextEntryArrayOffset uint64
}

const entryArrayObjectHeaderSize = objectHeaderSize + 8
