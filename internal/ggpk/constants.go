package ggpk

import "encoding/binary"

// Endian is the byte order of every integer stored in a container.
var Endian = binary.LittleEndian

// Record tags, stored as the second field of every record ("GGPK", "FREE", "FILE", "PDIR").
const (
	HeaderRecordTag    uint32 = 0x4B504747
	FreeRecordTag      uint32 = 0x45455246
	FileRecordTag      uint32 = 0x454C4946
	DirectoryRecordTag uint32 = 0x52494450
)

const (
	// RecordHeaderSize is the size of the length and tag fields shared by all records.
	RecordHeaderSize = 8

	// HashSize is the size of the SHA-256 content hash stored in file and directory records.
	HashSize = 32

	// FileHeaderSize covers length, tag, name length and hash of a file record.
	FileHeaderSize = RecordHeaderSize + 4 + HashSize

	// DirectoryHeaderSize covers length, tag, name length, entry count and hash of a directory record.
	DirectoryHeaderSize = RecordHeaderSize + 4 + 4 + HashSize

	// DirectoryEntrySize is one {name hash, offset} pair in a directory record.
	DirectoryEntrySize = 4 + 8

	// HeaderRecordSize is the fixed size of the "GGPK" record at offset 0.
	HeaderRecordSize = RecordHeaderSize + 4 + 8 + 8

	// FreeRecordMinSize is the smallest region that can hold a FREE record.
	FreeRecordMinSize = RecordHeaderSize + 8

	// fileHashOffset is where the hash lives relative to the start of a file record.
	fileHashOffset = RecordHeaderSize + 4
)

// FormatVersion is the container format version stored in the header record.
type FormatVersion uint32

const (
	// VersionPC is the default format with UTF-16 names.
	VersionPC FormatVersion = 3
	// VersionMac stores names as UTF-32.
	VersionMac FormatVersion = 4
)

// NameEncoding returns the text encoding records of this version use for names.
func (v FormatVersion) NameEncoding() NameEncoding {
	if v == VersionMac {
		return EncodingUTF32
	}
	return EncodingUTF16
}
