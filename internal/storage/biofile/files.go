package biofile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	twinerrors "github.com/LemonScripter/metaspace-fdir-public/internal/errors"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

const stampLayout = "20060102T150405.000000000"

// SetPaths names the three files persisted for one control cycle
type SetPaths struct {
	Level1 string
	Level2 string
	Level3 string
}

// FileName returns level{N}_{day:04d}_{stamp}.bio
func FileName(level biocode.Level, day uint16, ts time.Time) string {
	return fmt.Sprintf("level%d_%04d_%s.bio", level, day, ts.UTC().Format(stampLayout))
}

// WriteSequence persists all three levels of seq into dir
func WriteSequence(dir string, seq *biocode.Sequence, ts time.Time) (SetPaths, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SetPaths{}, fmt.Errorf("failed to create biocode dir: %w", err)
	}

	paths := SetPaths{
		Level1: filepath.Join(dir, FileName(biocode.LevelNode, seq.MissionDay, ts)),
		Level2: filepath.Join(dir, FileName(biocode.LevelModule, seq.MissionDay, ts)),
		Level3: filepath.Join(dir, FileName(biocode.LevelMission, seq.MissionDay, ts)),
	}
	images := []struct {
		path string
		data []byte
	}{
		{paths.Level1, MarshalLevel1(seq.Level1)},
		{paths.Level2, MarshalLevel2(seq.Level2)},
		{paths.Level3, MarshalLevel3(seq.Level3)},
	}
	for _, img := range images {
		if err := writeAtomic(img.path, img.data); err != nil {
			return SetPaths{}, err
		}
	}
	return paths, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// ReadFile parses a single .bio file
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// Latest finds the newest complete set for a mission day
func Latest(dir string, day uint16) (SetPaths, error) {
	prefix := fmt.Sprintf("level%d_%04d_", biocode.LevelMission, day)
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*.bio"))
	if err != nil {
		return SetPaths{}, fmt.Errorf("failed to list biocode dir: %w", err)
	}
	sort.Strings(matches)

	for i := len(matches) - 1; i >= 0; i-- {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(matches[i]), prefix), ".bio")
		set := SetPaths{
			Level1: filepath.Join(dir, fmt.Sprintf("level%d_%04d_%s.bio", biocode.LevelNode, day, stamp)),
			Level2: filepath.Join(dir, fmt.Sprintf("level%d_%04d_%s.bio", biocode.LevelModule, day, stamp)),
			Level3: matches[i],
		}
		if exists(set.Level1) && exists(set.Level2) {
			return set, nil
		}
	}
	return SetPaths{}, twinerrors.NotFound(fmt.Sprintf("biocode set for day %d", day))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadSequence loads a persisted set and rebuilds the sequence from the
// decoded words. Module membership is not persisted and comes back empty.
func ReadSequence(set SetPaths) (*biocode.Sequence, error) {
	l1, err := ReadFile(set.Level1)
	if err != nil {
		return nil, err
	}
	l2, err := ReadFile(set.Level2)
	if err != nil {
		return nil, err
	}
	l3, err := ReadFile(set.Level3)
	if err != nil {
		return nil, err
	}
	if l1.Level != biocode.LevelNode || l2.Level != biocode.LevelModule || l3.Level != biocode.LevelMission {
		return nil, twinerrors.WrongMagic(fmt.Sprintf("%s/%s/%s", l1.Header.Magic[:], l2.Header.Magic[:], l3.Header.Magic[:]), "BIO1/BIO2/BIO3")
	}

	seq := &biocode.Sequence{MissionDay: l3.Header.CountOrDay}
	for _, r := range l1.Level1 {
		d := biocode.DecodeNode(r.Word)
		seq.Level1 = append(seq.Level1, biocode.NodeEntry{
			ID:     d.ID,
			Health: d.Health,
			Status: d.Status,
			Word:   r.Word,
			Hex:    biocode.NodeHex(r.Word),
		})
	}
	for _, r := range l2.Level2 {
		d := biocode.DecodeModule(r.Word)
		seq.Level2 = append(seq.Level2, biocode.ModuleEntry{
			Capability: d.Capability,
			Health:     float64(d.Health),
			Trend:      d.Trend,
			Word:       r.Word,
			Hex:        biocode.ModuleHex(r.Word),
		})
	}

	mission := biocode.DecodeMission(l3.Level3.Word)
	seq.Level3 = biocode.MissionEntry{
		MissionDay:   mission.MissionDay,
		Feasibility:  float64(l3.Level3.Feasibility),
		Action:       biocode.ActionByCode(l3.Level3.ActionCode),
		SafetyMargin: l3.Level3.SafetyMargin,
		Word:         l3.Level3.Word,
		Hex:          biocode.MissionHex(l3.Level3.Word),
	}
	if seq.Level3.Action == model.ActionUnknown {
		seq.Level3.Action = mission.Action
	}
	return seq, nil
}
