// Package journalfile writes systemd journal (*.journal) files.
//
// Files written here are read back with libsystemd (sd_journal_open_files,
// journalctl --file). The package exists so entries can be exported from a
// live journal into a standalone file and so tests have deterministic
// fixture journals. It does not read journal files; that is libsystemd's job.
package journalfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"

	"github.com/mbrock/sdjournal/pkg/id128"
)

// Hash table sizes in items, as journald uses for small files.
const (
	dataHashTableItems  = 2047
	fieldHashTableItems = 333
)

// data entry arrays start with room for this many entry offsets
const entryArrayCapacity = 16

// Options configure Create and OpenAppend.
type Options struct {
	// MachineID is stored in the header. Null picks a random id.
	MachineID ID128
	// BootID stamps entries whose Entry.BootID is null. Null picks a random id.
	BootID ID128
	// CompressThreshold enables zstd compression of data payloads at least
	// this long. Zero stores everything uncompressed.
	CompressThreshold int
}

// Entry is one journal entry to append.
type Entry struct {
	// Realtime defaults to the current time.
	Realtime time.Time
	// Monotonic defaults to CLOCK_MONOTONIC now.
	Monotonic time.Duration
	// BootID defaults to Options.BootID.
	BootID ID128
	// Data holds "FIELD=value" items. Values may be binary. Duplicate items
	// are stored once.
	Data [][]byte
}

// Fields builds Entry.Data from alternating names and values.
func Fields(kv ...string) [][]byte {
	out := make([][]byte, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, []byte(kv[i]+"="+kv[i+1]))
	}
	return out
}

var errNotKeyed = errors.New("journalfile: only keyed-hash journal files can be appended to")

// File is a journal file open for appending.
type File struct {
	mu   sync.Mutex
	f    *os.File
	path string

	header Header
	bootID ID128

	zenc              *zstd.Encoder
	compressThreshold int

	dataTable  []hashItem
	fieldTable []hashItem

	// keyed hash -> object offset, for deduplication
	dataOffsets  map[uint64]uint64
	fieldOffsets map[uint64]uint64

	dirty bool
}

func randomIfNull(id ID128) (ID128, error) {
	if !id.IsNull() {
		return id, nil
	}
	return id128.Random()
}

// Create creates a new journal file at path. The file must not exist.
func Create(path string, opts Options) (*File, error) {
	machineID, err := randomIfNull(opts.MachineID)
	if err != nil {
		return nil, fmt.Errorf("machine id: %w", err)
	}
	bootID, err := randomIfNull(opts.BootID)
	if err != nil {
		return nil, fmt.Errorf("boot id: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return nil, fmt.Errorf("create journal file: %w", err)
	}

	jf := newFile(f, path, bootID)
	jf.header.MachineID = machineID
	if err := jf.setCompression(opts.CompressThreshold); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := jf.initialize(); err != nil {
		jf.closeEncoder()
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return jf, nil
}

// OpenAppend opens an existing journal file written by Create (or by
// journald with keyed hashing) for appending. Entries get a fresh boot id
// unless opts.BootID is set. Compression is used only if the file already
// advertises zstd.
func OpenAppend(path string, opts Options) (*File, error) {
	bootID, err := randomIfNull(opts.BootID)
	if err != nil {
		return nil, fmt.Errorf("boot id: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0640)
	if err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}

	jf := newFile(f, path, bootID)
	if err := jf.load(opts.CompressThreshold); err != nil {
		jf.closeEncoder()
		f.Close()
		return nil, err
	}
	return jf, nil
}

func newFile(f *os.File, path string, bootID ID128) *File {
	return &File{
		f:            f,
		path:         path,
		bootID:       bootID,
		dataOffsets:  make(map[uint64]uint64),
		fieldOffsets: make(map[uint64]uint64),
	}
}

func (jf *File) setCompression(threshold int) error {
	if threshold <= 0 {
		return nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd encoder: %w", err)
	}
	jf.zenc = enc
	jf.compressThreshold = threshold
	jf.header.IncompatibleFlags |= IncompatibleCompressedZSTD
	return nil
}

func (jf *File) closeEncoder() {
	if jf.zenc != nil {
		jf.zenc.Close()
		jf.zenc = nil
	}
}

func (jf *File) initialize() error {
	fileID, err := id128.Random()
	if err != nil {
		return fmt.Errorf("file id: %w", err)
	}
	seqnumID, err := id128.Random()
	if err != nil {
		return fmt.Errorf("seqnum id: %w", err)
	}

	dataItems := uint64(dataHashTableItems * hashItemSize)
	fieldItems := uint64(fieldHashTableItems * hashItemSize)
	dataObjSize := align64(objectHeaderSize + dataItems)
	fieldObjSize := align64(objectHeaderSize + fieldItems)
	dataObjOffset := uint64(HeaderSize)
	fieldObjOffset := dataObjOffset + dataObjSize

	jf.header.Signature = Signature
	jf.header.IncompatibleFlags |= IncompatibleKeyedHash
	jf.header.State = stateOffline
	jf.header.FileID = fileID
	jf.header.SeqnumID = seqnumID
	jf.header.HeaderSize = HeaderSize
	jf.header.ArenaSize = dataObjSize + fieldObjSize
	jf.header.DataHashTableOffset = dataObjOffset + objectHeaderSize
	jf.header.DataHashTableSize = dataItems
	jf.header.FieldHashTableOffset = fieldObjOffset + objectHeaderSize
	jf.header.FieldHashTableSize = fieldItems
	jf.header.NObjects = 2
	jf.header.TailObjectOffset = fieldObjOffset

	jf.dataTable = make([]hashItem, dataHashTableItems)
	jf.fieldTable = make([]hashItem, fieldHashTableItems)

	var buf bytes.Buffer
	writes := []any{
		&jf.header,
		&objectHeader{Type: objectDataHashTable, Size: objectHeaderSize + dataItems},
		jf.dataTable,
		make([]byte, dataObjSize-objectHeaderSize-dataItems),
		&objectHeader{Type: objectFieldHashTable, Size: objectHeaderSize + fieldItems},
		jf.fieldTable,
		make([]byte, fieldObjSize-objectHeaderSize-fieldItems),
	}
	for _, v := range writes {
		if err := binary.Write(&buf, le, v); err != nil {
			return fmt.Errorf("encode file skeleton: %w", err)
		}
	}
	if _, err := jf.f.WriteAt(buf.Bytes(), 0); err != nil {
		return fmt.Errorf("write file skeleton: %w", err)
	}
	return nil
}

func (jf *File) load(compressThreshold int) error {
	if err := jf.readAt(0, &jf.header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if jf.header.Signature != Signature {
		return fmt.Errorf("journalfile: %s: bad signature", jf.path)
	}
	if jf.header.IncompatibleFlags&IncompatibleKeyedHash == 0 {
		return errNotKeyed
	}
	if jf.header.IncompatibleFlags&^(IncompatibleKeyedHash|IncompatibleCompressedZSTD) != 0 {
		return fmt.Errorf("journalfile: %s: unsupported incompatible flags %#x", jf.path, jf.header.IncompatibleFlags)
	}
	if jf.header.IncompatibleFlags&IncompatibleCompressedZSTD != 0 {
		if err := jf.setCompression(compressThreshold); err != nil {
			return err
		}
	}

	jf.dataTable = make([]hashItem, jf.header.DataHashTableSize/hashItemSize)
	if err := jf.readAt(int64(jf.header.DataHashTableOffset), jf.dataTable); err != nil {
		return fmt.Errorf("read data hash table: %w", err)
	}
	jf.fieldTable = make([]hashItem, jf.header.FieldHashTableSize/hashItemSize)
	if err := jf.readAt(int64(jf.header.FieldHashTableOffset), jf.fieldTable); err != nil {
		return fmt.Errorf("read field hash table: %w", err)
	}

	if err := jf.indexChains(jf.dataTable, jf.dataOffsets); err != nil {
		return fmt.Errorf("index data objects: %w", err)
	}
	if err := jf.indexChains(jf.fieldTable, jf.fieldOffsets); err != nil {
		return fmt.Errorf("index field objects: %w", err)
	}
	return nil
}

// indexChains walks every hash chain of table so appends reuse existing
// data and field objects instead of shadowing them.
func (jf *File) indexChains(table []hashItem, into map[uint64]uint64) error {
	for _, item := range table {
		for off := item.Head; off != 0; {
			var obj hashedObject
			if err := jf.readAt(int64(off), &obj); err != nil {
				return err
			}
			if _, ok := into[obj.Hash]; !ok {
				into[obj.Hash] = off
			}
			off = obj.NextHashOffset
		}
	}
	return nil
}

// AppendEntry appends an entry stamped with the current time. Fields are
// written in name order.
func (jf *File) AppendEntry(fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	data := make([][]byte, 0, len(names))
	for _, k := range names {
		data = append(data, []byte(k+"="+fields[k]))
	}
	return jf.Append(Entry{Data: data})
}

// Append writes one entry. Realtime timestamps should not decrease across
// appends, or libsystemd's seeking by time becomes unreliable.
func (jf *File) Append(e Entry) error {
	if len(e.Data) == 0 {
		return errors.New("journalfile: entry has no data")
	}
	if e.Realtime.IsZero() {
		e.Realtime = time.Now()
	}
	if e.Monotonic == 0 {
		var ts unix.Timespec
		if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
			return fmt.Errorf("clock_gettime: %w", err)
		}
		e.Monotonic = time.Duration(ts.Nano())
	}
	if e.BootID.IsNull() {
		e.BootID = jf.bootID
	}
	realtime := e.Realtime.UnixMicro()
	if realtime < 0 {
		return fmt.Errorf("journalfile: realtime %v before the epoch", e.Realtime)
	}

	jf.mu.Lock()
	defer jf.mu.Unlock()

	fd := int(jf.f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	defer unix.Flock(fd, unix.LOCK_UN)

	if err := jf.markOnline(); err != nil {
		return err
	}
	jf.dirty = true

	items := make([]entryItem, 0, len(e.Data))
	seen := make(map[uint64]bool, len(e.Data))
	var xor uint64
	for _, d := range e.Data {
		eq := bytes.IndexByte(d, '=')
		if eq <= 0 {
			return fmt.Errorf("journalfile: data item %q has no field name", truncate(d))
		}
		hash := keyedHash(d, jf.header.FileID)
		if seen[hash] {
			continue
		}
		seen[hash] = true

		off, err := jf.dataObject(d, d[:eq], hash)
		if err != nil {
			return fmt.Errorf("append data %q: %w", d[:eq], err)
		}
		items = append(items, entryItem{ObjectOffset: off, Hash: hash})
		xor ^= jenkins64(d)
	}

	return jf.appendEntry(uint64(realtime), uint64(e.Monotonic/time.Microsecond), e.BootID, xor, items)
}

func truncate(b []byte) []byte {
	if len(b) > 32 {
		return b[:32]
	}
	return b
}

func align64(n uint64) uint64 {
	return (n + 7) &^ 7
}

func (jf *File) writeAt(offset int64, v any) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, le, v); err != nil {
		return err
	}
	_, err := jf.f.WriteAt(buf.Bytes(), offset)
	return err
}

func (jf *File) readAt(offset int64, v any) error {
	buf := make([]byte, binary.Size(v))
	if _, err := jf.f.ReadAt(buf, offset); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buf), le, v)
}

// appendObject writes head followed by payload at the next 8-byte aligned
// offset past the end of the file and returns that offset.
func (jf *File) appendObject(head any, payload []byte) (uint64, error) {
	end, err := jf.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	offset := align64(uint64(end))

	var buf bytes.Buffer
	buf.Write(make([]byte, offset-uint64(end)))
	if err := binary.Write(&buf, le, head); err != nil {
		return 0, err
	}
	buf.Write(payload)
	if _, err := jf.f.Write(buf.Bytes()); err != nil {
		return 0, err
	}

	jf.header.NObjects++
	jf.header.TailObjectOffset = offset
	return offset, nil
}

// markOnline flags the file as being modified, like journald does before
// touching any object.
func (jf *File) markOnline() error {
	if jf.header.State == stateOnline {
		return nil
	}
	jf.header.State = stateOnline
	_, err := jf.f.WriteAt([]byte{stateOnline}, 16)
	return err
}

func (jf *File) dataObject(data, field []byte, hash uint64) (uint64, error) {
	if off, ok := jf.dataOffsets[hash]; ok {
		return off, nil
	}

	fieldOff, err := jf.fieldObject(field)
	if err != nil {
		return 0, err
	}
	headDataAt := int64(fieldOff) + fieldObjectHeaderSize - 8
	var prevHead uint64
	if err := jf.readAt(headDataAt, &prevHead); err != nil {
		return 0, err
	}

	payload, flags := data, uint8(0)
	if jf.zenc != nil && len(data) >= jf.compressThreshold {
		payload = jf.zenc.EncodeAll(data, nil)
		flags = objectCompressedZSTD
	}

	obj := dataObject{
		Hashed: hashedObject{
			Object: objectHeader{Type: objectData, Flags: flags, Size: uint64(dataObjectHeaderSize + len(payload))},
			Hash:   hash,
		},
		NextFieldOffset: prevHead,
	}
	off, err := jf.appendObject(&obj, payload)
	if err != nil {
		return 0, err
	}
	if err := jf.writeAt(headDataAt, &off); err != nil {
		return 0, err
	}
	if err := jf.linkHash(jf.dataTable, jf.header.DataHashTableOffset, hash, off); err != nil {
		return 0, err
	}

	jf.dataOffsets[hash] = off
	jf.header.NData++
	return off, nil
}

func (jf *File) fieldObject(name []byte) (uint64, error) {
	hash := keyedHash(name, jf.header.FileID)
	if off, ok := jf.fieldOffsets[hash]; ok {
		return off, nil
	}

	obj := fieldObject{
		Hashed: hashedObject{
			Object: objectHeader{Type: objectField, Size: uint64(fieldObjectHeaderSize + len(name))},
			Hash:   hash,
		},
	}
	off, err := jf.appendObject(&obj, name)
	if err != nil {
		return 0, err
	}
	if err := jf.linkHash(jf.fieldTable, jf.header.FieldHashTableOffset, hash, off); err != nil {
		return 0, err
	}

	jf.fieldOffsets[hash] = off
	jf.header.NFields++
	return off, nil
}

// linkHash appends the object at off to the chain of its hash bucket.
func (jf *File) linkHash(table []hashItem, tableOffset, hash, off uint64) error {
	idx := hash % uint64(len(table))
	item := &table[idx]
	if item.Tail != 0 {
		if err := jf.writeAt(int64(item.Tail)+nextHashFieldOffset, &off); err != nil {
			return err
		}
	} else {
		item.Head = off
	}
	item.Tail = off
	return jf.writeAt(int64(tableOffset+idx*hashItemSize), item)
}

func (jf *File) appendEntry(realtime, monotonic uint64, bootID ID128, xor uint64, items []entryItem) error {
	jf.header.TailEntrySeqnum++
	seqnum := jf.header.TailEntrySeqnum

	var payload bytes.Buffer
	if err := binary.Write(&payload, le, items); err != nil {
		return err
	}
	entry := entryObject{
		Object:    objectHeader{Type: objectEntry, Size: uint64(entryObjectHeaderSize + len(items)*entryItemSize)},
		Seqnum:    seqnum,
		Realtime:  realtime,
		Monotonic: monotonic,
		BootID:    bootID,
		XorHash:   xor,
	}
	entryOff, err := jf.appendObject(&entry, payload.Bytes())
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := jf.linkDataToEntry(item.ObjectOffset, entryOff); err != nil {
			return fmt.Errorf("link data to entry: %w", err)
		}
	}

	// The global entry array is a chain of one-item arrays.
	arrayOff, err := jf.newEntryArray(1, entryOff)
	if err != nil {
		return err
	}
	if prev := uint64(jf.header.TailEntryArrayOffset); prev != 0 {
		if err := jf.writeAt(int64(prev)+objectHeaderSize, &arrayOff); err != nil {
			return err
		}
	}
	if jf.header.EntryArrayOffset == 0 {
		jf.header.EntryArrayOffset = arrayOff
	}
	jf.header.TailEntryArrayOffset = uint32(arrayOff)
	jf.header.TailEntryArrayNEntries = 1

	jf.header.NEntries++
	jf.header.TailEntryOffset = entryOff
	jf.header.TailEntryBootID = bootID
	jf.header.TailEntryRealtime = realtime
	jf.header.TailEntryMonotonic = monotonic
	if jf.header.HeadEntrySeqnum == 0 {
		jf.header.HeadEntrySeqnum = seqnum
		jf.header.HeadEntryRealtime = realtime
	}
	return jf.updateArenaSize()
}

func (jf *File) updateArenaSize() error {
	end, err := jf.f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	jf.header.ArenaSize = uint64(end) - HeaderSize
	return nil
}

// newEntryArray appends an entry array with room for capacity offsets,
// the first of which is first.
func (jf *File) newEntryArray(capacity int, first uint64) (uint64, error) {
	slots := make([]uint64, capacity)
	slots[0] = first
	var payload bytes.Buffer
	if err := binary.Write(&payload, le, slots); err != nil {
		return 0, err
	}
	arr := entryArrayObject{
		Object: objectHeader{Type: objectEntryArray, Size: uint64(entryArrayObjectHeaderSize + 8*capacity)},
	}
	off, err := jf.appendObject(&arr, payload.Bytes())
	if err != nil {
		return 0, err
	}
	jf.header.NEntryArrays++
	return off, nil
}

// linkDataToEntry records that the entry at entryOff references the data
// object at dataOff. The first reference lives in the data object itself,
// later ones in its entry array chain.
func (jf *File) linkDataToEntry(dataOff, entryOff uint64) error {
	at := int64(dataOff) + dataEntryRefsOffset
	var refs dataEntryRefs
	if err := jf.readAt(at, &refs); err != nil {
		return err
	}

	switch {
	case refs.EntryOffset == 0:
		refs.EntryOffset = entryOff
	case refs.EntryArrayOffset == 0:
		arr, err := jf.newEntryArray(entryArrayCapacity, entryOff)
		if err != nil {
			return err
		}
		refs.EntryArrayOffset = arr
	default:
		if err := jf.pushEntryArray(refs.EntryArrayOffset, entryOff); err != nil {
			return err
		}
	}
	refs.NEntries++
	return jf.writeAt(at, &refs)
}

// pushEntryArray stores entryOff in the first free slot of the chain
// starting at arrayOff, growing the chain when every array is full.
func (jf *File) pushEntryArray(arrayOff, entryOff uint64) error {
	for {
		var arr entryArrayObject
		if err := jf.readAt(int64(arrayOff), &arr); err != nil {
			return err
		}
		if arr.NextEntryArrayOffset != 0 {
			arrayOff = arr.NextEntryArrayOffset
			continue
		}

		slots := make([]uint64, (arr.Object.Size-entryArrayObjectHeaderSize)/8)
		slotsAt := int64(arrayOff) + entryArrayObjectHeaderSize
		if err := jf.readAt(slotsAt, slots); err != nil {
			return err
		}
		for i, s := range slots {
			if s == 0 {
				return jf.writeAt(slotsAt+int64(i*8), &entryOff)
			}
		}

		next, err := jf.newEntryArray(2*len(slots), entryOff)
		if err != nil {
			return err
		}
		return jf.writeAt(int64(arrayOff)+objectHeaderSize, &next)
	}
}

// Sync writes the header, marks the file offline and fsyncs, so that
// readers opening the file see a consistent state. The file stays open.
func (jf *File) Sync() error {
	jf.mu.Lock()
	defer jf.mu.Unlock()
	return jf.syncLocked()
}

// Close syncs and closes the file.
func (jf *File) Close() error {
	jf.mu.Lock()
	defer jf.mu.Unlock()
	defer jf.closeEncoder()

	if err := jf.syncLocked(); err != nil {
		jf.f.Close()
		return err
	}
	return jf.f.Close()
}

func (jf *File) syncLocked() error {
	if !jf.dirty {
		return nil
	}
	if err := jf.updateArenaSize(); err != nil {
		return err
	}
	jf.header.State = stateOffline
	// One write for the whole header so readers never see a torn one.
	if err := jf.writeAt(0, &jf.header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := jf.f.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	jf.dirty = false
	return nil
}

// Path returns the file's path.
func (jf *File) Path() string {
	return jf.path
}

// Header returns a copy of the in-memory header.
func (jf *File) Header() Header {
	jf.mu.Lock()
	defer jf.mu.Unlock()
	return jf.header
}

// WriteFile creates path and appends entries in order.
func WriteFile(path string, opts Options, entries []Entry) error {
	jf, err := Create(path, opts)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if err := jf.Append(e); err != nil {
			jf.Close()
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return jf.Close()
}
