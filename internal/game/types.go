package game

import "time"

type TeamInput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateGameInput struct {
	ID          string      `json:"id"`
	Teams       []TeamInput `json:"teams"`
	TotalRounds int         `json:"total_rounds"`
	Seed        *int64      `json:"seed,omitempty"`
}

// ParticipantView is what one participant may see of a game: its own company
// in full, the market, and only public figures of competitors.
type ParticipantView struct {
	GameID          string             `json:"game_id"`
	Round           int                `json:"round"`
	TotalRounds     int                `json:"total_rounds"`
	Phase           Phase              `json:"phase"`
	Submitted       bool               `json:"submitted"`
	Company         Company            `json:"company"`
	Market          Market             `json:"market"`
	Events          []Event            `json:"events"`
	Competitors     []CompetitorView   `json:"competitors"`
	PreviousResults *ParticipantResult `json:"previous_results"`
	RoundOpenedAt   time.Time          `json:"round_opened_at"`
}

type CompetitorView struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	MarketShare   float64 `json:"market_share"`
	BrandStrength float64 `json:"brand_strength"`
	TotalScore    float64 `json:"total_score"`
}

type ParticipantResult struct {
	Round    int                     `json:"round"`
	Rank     int                     `json:"rank"`
	Sales    map[string]SegmentSales `json:"sales"`
	Decision Decision                `json:"decision"`
	Company  Company                 `json:"company"`
}

// View projects g for one participant.
func View(g *Game, participantID string) (*ParticipantView, error) {
	c, ok := g.Companies[participantID]
	if !ok {
		return nil, invalid("participant_id", "unknown participant %q", participantID)
	}
	_, submitted := g.Pending[participantID]
	v := &ParticipantView{
		GameID:        g.ID,
		Round:         g.Round,
		TotalRounds:   g.TotalRounds,
		Phase:         g.Phase,
		Submitted:     submitted,
		Company:       c.Snapshot(),
		Market:        g.Market,
		RoundOpenedAt: g.RoundOpenedAt,
	}
	for _, id := range g.Participants {
		if id == participantID {
			continue
		}
		other := g.Companies[id]
		v.Competitors = append(v.Competitors, CompetitorView{
			ID:            other.ID,
			Name:          other.Name,
			MarketShare:   other.MarketShare,
			BrandStrength: other.BrandStrength,
			TotalScore:    other.Scores.Total,
		})
	}
	if last := g.LastResult(); last != nil {
		v.Events = last.Events
		prev := &ParticipantResult{
			Round:    last.Round,
			Sales:    last.Sales[participantID],
			Decision: last.Decisions[participantID],
			Company:  last.Companies[participantID],
		}
		for _, r := range last.Rankings {
			if r.ParticipantID == participantID {
				prev.Rank = r.Rank
			}
		}
		v.PreviousResults = prev
	}
	return v, nil
}
