package biocode

import (
	"fmt"
	"strconv"
	"strings"

	twinerrors "github.com/LemonScripter/metaspace-fdir-public/internal/errors"
)

// Level identifies one of the three word levels
type Level int

const (
	LevelNode    Level = 1
	LevelModule  Level = 2
	LevelMission Level = 3
)

// HexDigits is the fixed hex width of a level's word
func (l Level) HexDigits() int {
	if l == LevelModule {
		return 8
	}
	return 16
}

// Valid reports whether l names a known level
func (l Level) Valid() bool {
	return l >= LevelNode && l <= LevelMission
}

// NodeHex formats a Level-1 word
func NodeHex(word uint64) string {
	return fmt.Sprintf("0x%016X", word)
}

// ModuleHex formats a Level-2 word
func ModuleHex(word uint32) string {
	return fmt.Sprintf("0x%08X", word)
}

// MissionHex formats a Level-3 word
func MissionHex(word uint64) string {
	return fmt.Sprintf("0x%016X", word)
}

// ParseHex parses a 0x-prefixed word of exactly the level's width
func ParseHex(level Level, s string) (uint64, error) {
	if !level.Valid() {
		return 0, twinerrors.InvalidArgument(fmt.Sprintf("unknown bio-code level %d", level), nil)
	}
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return 0, twinerrors.MalformedHex(s, fmt.Errorf("missing 0x prefix"))
	}
	digits := trimmed[2:]
	if len(digits) != level.HexDigits() {
		return 0, twinerrors.MalformedHex(s, fmt.Errorf("want %d hex digits, got %d", level.HexDigits(), len(digits))).
			WithDetail("level", int(level))
	}
	v, err := strconv.ParseUint(digits, 16, level.HexDigits()*4)
	if err != nil {
		return 0, twinerrors.MalformedHex(s, err)
	}
	return v, nil
}

// DecodeNodeHex parses and decodes a Level-1 hex word
func DecodeNodeHex(s string) (NodeWord, error) {
	v, err := ParseHex(LevelNode, s)
	if err != nil {
		return NodeWord{}, err
	}
	return DecodeNode(v), nil
}

// DecodeModuleHex parses and decodes a Level-2 hex word
func DecodeModuleHex(s string) (ModuleWord, error) {
	v, err := ParseHex(LevelModule, s)
	if err != nil {
		return ModuleWord{}, err
	}
	return DecodeModule(uint32(v)), nil
}

// DecodeMissionHex parses and decodes a Level-3 hex word
func DecodeMissionHex(s string) (MissionWord, error) {
	v, err := ParseHex(LevelMission, s)
	if err != nil {
		return MissionWord{}, err
	}
	return DecodeMission(v), nil
}

// DecodeHex decodes a word of any level into its typed form
func DecodeHex(level Level, s string) (interface{}, error) {
	switch level {
	case LevelNode:
		return DecodeNodeHex(s)
	case LevelModule:
		return DecodeModuleHex(s)
	case LevelMission:
		return DecodeMissionHex(s)
	default:
		return nil, twinerrors.InvalidArgument(fmt.Sprintf("unknown bio-code level %d", level), nil)
	}
}
