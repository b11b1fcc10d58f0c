// Package biofile reads and writes the binary .bio persistence format.
//
// Every file starts with a 16-byte little-endian header:
//
//	magic[4] | version u16 | count-or-day u16 | reserved[8]
//
// Version 2 stores the CRC32 of the payload in reserved[0:4]. Version 1 files
// carry no checksum and are read without verification.
package biofile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	twinerrors "github.com/LemonScripter/metaspace-fdir-public/internal/errors"
	"github.com/LemonScripter/metaspace-fdir-public/internal/util"
)

const (
	HeaderSize = 16

	VersionLegacy  uint16 = 1
	VersionCurrent uint16 = 2

	level1RecordSize = 10
	level2RecordSize = 5
	level3RecordSize = 20
)

var magics = map[biocode.Level][4]byte{
	biocode.LevelNode:    {'B', 'I', 'O', '1'},
	biocode.LevelModule:  {'B', 'I', 'O', '2'},
	biocode.LevelMission: {'B', 'I', 'O', '3'},
}

// Header is the fixed file header
type Header struct {
	Magic      [4]byte
	Version    uint16
	CountOrDay uint16
	Reserved   [8]byte
}

// Level1Record is one persisted node word
type Level1Record struct {
	Code uint16
	Word uint64
}

// Level2Record is one persisted module word
type Level2Record struct {
	Code uint8
	Word uint32
}

// Level3Record is the persisted mission word with its decision fields
type Level3Record struct {
	Word         uint64
	Feasibility  float32
	ActionCode   uint32
	SafetyMargin uint8
	Reserved     [3]byte
}

// File is a parsed .bio file of any level
type File struct {
	Level   biocode.Level
	Header  Header
	Level1  []Level1Record
	Level2  []Level2Record
	Level3  *Level3Record
	Checked bool
}

func recordSize(level biocode.Level) int {
	switch level {
	case biocode.LevelNode:
		return level1RecordSize
	case biocode.LevelModule:
		return level2RecordSize
	default:
		return level3RecordSize
	}
}

func frame(level biocode.Level, countOrDay uint16, payload []byte) []byte {
	h := Header{
		Magic:      magics[level],
		Version:    VersionCurrent,
		CountOrDay: countOrDay,
	}
	util.PutChecksum(h.Reserved[:], util.ComputeChecksum(payload))

	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(payload))
	// bytes.Buffer writes cannot fail
	_ = binary.Write(&buf, binary.LittleEndian, h)
	buf.Write(payload)
	return buf.Bytes()
}

// MarshalLevel1 encodes node entries into a BIO1 file image
func MarshalLevel1(entries []biocode.NodeEntry) []byte {
	var payload bytes.Buffer
	for _, e := range entries {
		_ = binary.Write(&payload, binary.LittleEndian, Level1Record{
			Code: biocode.NodeCode(e.ID),
			Word: e.Word,
		})
	}
	return frame(biocode.LevelNode, uint16(len(entries)), payload.Bytes())
}

// MarshalLevel2 encodes module entries into a BIO2 file image
func MarshalLevel2(entries []biocode.ModuleEntry) []byte {
	var payload bytes.Buffer
	for _, e := range entries {
		_ = binary.Write(&payload, binary.LittleEndian, Level2Record{
			Code: biocode.ModuleCode(e.Capability),
			Word: e.Word,
		})
	}
	return frame(biocode.LevelModule, uint16(len(entries)), payload.Bytes())
}

// MarshalLevel3 encodes the mission entry into a BIO3 file image
func MarshalLevel3(m biocode.MissionEntry) []byte {
	var payload bytes.Buffer
	_ = binary.Write(&payload, binary.LittleEndian, Level3Record{
		Word:         m.Word,
		Feasibility:  float32(m.Feasibility),
		ActionCode:   biocode.ActionCode(m.Action),
		SafetyMargin: m.SafetyMargin,
	})
	return frame(biocode.LevelMission, m.MissionDay, payload.Bytes())
}

// Unmarshal parses a file image, inferring the level from the magic
func Unmarshal(data []byte) (*File, error) {
	if len(data) < HeaderSize {
		return nil, twinerrors.WrongLength("bio file header", len(data), HeaderSize)
	}

	var h Header
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	level, ok := levelForMagic(h.Magic)
	if !ok {
		return nil, twinerrors.WrongMagic(string(h.Magic[:]), "BIO1|BIO2|BIO3")
	}
	if h.Version != VersionLegacy && h.Version != VersionCurrent {
		return nil, twinerrors.UnsupportedVersion(h.Version)
	}

	payload := data[HeaderSize:]
	f := &File{Level: level, Header: h}
	if h.Version == VersionCurrent {
		expected := util.ReadChecksum(h.Reserved[:])
		if !util.ValidateChecksum(payload, expected) {
			return nil, twinerrors.ChecksumFailed(expected, util.ComputeChecksum(payload))
		}
		f.Checked = true
	}

	count := int(h.CountOrDay)
	if level == biocode.LevelMission {
		count = 1
	}
	if want := count * recordSize(level); len(payload) != want {
		return nil, twinerrors.WrongLength(fmt.Sprintf("level%d payload", level), len(payload), want)
	}

	r := bytes.NewReader(payload)
	switch level {
	case biocode.LevelNode:
		f.Level1 = make([]Level1Record, count)
		if err := binary.Read(r, binary.LittleEndian, f.Level1); err != nil {
			return nil, fmt.Errorf("read level1 records: %w", err)
		}
	case biocode.LevelModule:
		f.Level2 = make([]Level2Record, count)
		if err := binary.Read(r, binary.LittleEndian, f.Level2); err != nil {
			return nil, fmt.Errorf("read level2 records: %w", err)
		}
	default:
		f.Level3 = &Level3Record{}
		if err := binary.Read(r, binary.LittleEndian, f.Level3); err != nil {
			return nil, fmt.Errorf("read level3 record: %w", err)
		}
		if fe := float64(f.Level3.Feasibility); math.IsNaN(fe) || fe < 0 || fe > 100 {
			return nil, twinerrors.ValueOutOfRange("level3 feasibility", fe)
		}
	}
	return f, nil
}

func levelForMagic(m [4]byte) (biocode.Level, bool) {
	for level, want := range magics {
		if m == want {
			return level, true
		}
	}
	return 0, false
}
