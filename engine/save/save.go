// Package save implements JSON serialization and deserialization of the
// runtime store.
package save

import (
	"encoding/json"

	"storyloom/engine/state"
	"storyloom/types"
)

// SaveData is the JSON-serializable save format: a flat record of the
// store plus the RNG stream coordinates, so a load resumes mid-sequence.
type SaveData struct {
	Title        string                        `json:"title"`
	Version      string                        `json:"version"`
	Turn         int                           `json:"turn"`
	CurrentScene string                        `json:"current_scene"`
	Variables    map[string]any                `json:"variables"`
	Flags        map[string]bool               `json:"flags"`
	Effects      map[string]types.ActiveEffect `json:"active_effects"`
	RNGSeed      int64                         `json:"rng_seed"`
	RNGPos       int64                         `json:"rng_pos"`
}

// Snapshot serializes the store to JSON bytes. seed and pos are the RNG
// stream coordinates at the moment of the save.
func Snapshot(s *types.State, sc *state.Script, seed, pos int64) ([]byte, error) {
	data := SaveData{
		Title:        sc.Meta.Title,
		Version:      sc.Meta.Version,
		Turn:         s.Turn,
		CurrentScene: s.CurrentScene,
		Variables:    s.Vars,
		Flags:        s.Flags,
		Effects:      s.Effects,
		RNGSeed:      seed,
		RNGPos:       pos,
	}
	return json.MarshalIndent(data, "", "  ")
}

// Load deserializes JSON bytes into SaveData.
func Load(data []byte) (*SaveData, error) {
	var sd SaveData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, err
	}
	// Ensure maps are never nil after load.
	if sd.Variables == nil {
		sd.Variables = map[string]any{}
	}
	if sd.Flags == nil {
		sd.Flags = map[string]bool{}
	}
	if sd.Effects == nil {
		sd.Effects = map[string]types.ActiveEffect{}
	}
	return &sd, nil
}

// Apply overwrites a store with loaded save data. The RNG coordinates
// are left for the caller, which owns the stream.
func Apply(s *types.State, sd *SaveData) {
	s.Vars = sd.Variables
	s.Flags = sd.Flags
	s.Effects = sd.Effects
	s.CurrentScene = sd.CurrentScene
	s.Turn = sd.Turn
	s.RNGSeed = sd.RNGSeed
}
