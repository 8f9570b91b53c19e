package game

import (
	"encoding/json"
	"fmt"
)

// EncodeGame serializes a game snapshot. Every field, including decision
// history and used events, survives DecodeGame unchanged.
func EncodeGame(g *Game) ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	return data, nil
}

func DecodeGame(data []byte) (*Game, error) {
	var g Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	if g.Companies == nil {
		g.Companies = map[string]*Company{}
	}
	if g.Pending == nil {
		g.Pending = map[string]Decision{}
	}
	if g.UsedEvents == nil {
		g.UsedEvents = map[string]int{}
	}
	for _, c := range g.Companies {
		if c == nil {
			continue
		}
		if c.Products == nil {
			c.Products = map[string]Product{}
		}
		if c.Decisions == nil {
			c.Decisions = map[int]Decision{}
		}
	}
	return &g, nil
}

func cloneGame(g *Game) (*Game, error) {
	data, err := EncodeGame(g)
	if err != nil {
		return nil, err
	}
	return DecodeGame(data)
}
