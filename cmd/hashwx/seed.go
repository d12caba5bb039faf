package main

import (
	"encoding/hex"
	"fmt"

	"github.com/wippyai/hashwx"
	"github.com/wippyai/hashwx/engine"
	"github.com/wippyai/hashwx/errors"
)

// parseSeed builds a seed from text (zero padded) or from exactly 64 hex
// digits. Hex wins when both are given.
func parseSeed(text, hexSeed string) ([]byte, error) {
	if hexSeed != "" {
		if len(hexSeed) != 2*hashwx.SeedSize {
			return nil, errors.InvalidInput(errors.PhaseConfig,
				fmt.Sprintf("hex seed must be %d digits, got %d", 2*hashwx.SeedSize, len(hexSeed)))
		}
		seed, err := hex.DecodeString(hexSeed)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "hex seed")
		}
		return seed, nil
	}
	if len(text) > hashwx.SeedSize {
		return nil, errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("text seed is %d bytes, at most %d allowed", len(text), hashwx.SeedSize))
	}
	seed := make([]byte, hashwx.SeedSize)
	copy(seed, text)
	return seed, nil
}

func parseModes(s string) ([]hashwx.Mode, error) {
	switch s {
	case "both":
		return []hashwx.Mode{hashwx.ModeInterpreted, hashwx.ModeCompiled}, nil
	default:
		m, err := engine.ParseMode(s)
		if err != nil {
			return nil, err
		}
		return []hashwx.Mode{m}, nil
	}
}
