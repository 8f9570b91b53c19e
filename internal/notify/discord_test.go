package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"stratsim/internal/game"
)

type fakeSender struct {
	channel string
	content string
	err     error
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel, f.content = channelID, content
	return &discordgo.Message{}, f.err
}

func sampleResult() *game.RoundResult {
	return &game.RoundResult{
		Round:      2,
		CarriedFor: []string{"team-3"},
		Events:     []game.Event{{Title: "Chip shortage", Description: "Component costs rise."}},
		Rankings: []game.Ranking{
			{Rank: 1, Name: "Northwind Mobile", Total: 71.24},
			{Rank: 2, Name: "A very long company name indeed", Total: 40},
		},
	}
}

func TestStandings(t *testing.T) {
	g := &game.Game{ID: "g1", Round: 3, TotalRounds: 6, Phase: game.PhaseAwaitingDecisions}
	msg := Standings(g, sampleResult())
	for _, want := range []string{"round 2/6 resolved", "Chip shortage", "team-3", "Northwind Mobile", "71.2", "A very long company…"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}

	g.Phase = game.PhaseFinished
	if msg := Standings(g, sampleResult()); !strings.Contains(msg, "finished after 6 rounds") {
		t.Fatalf("final message:\n%s", msg)
	}
}

func TestOnRoundResolvedSends(t *testing.T) {
	fs := &fakeSender{}
	d := &Discord{session: fs, channelID: "chan-1"}
	g := &game.Game{ID: "g1", TotalRounds: 6, Phase: game.PhaseAwaitingDecisions}
	if err := d.OnRoundResolved(context.Background(), g, sampleResult()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if fs.channel != "chan-1" || fs.content == "" {
		t.Fatalf("sent %q to %q", fs.content, fs.channel)
	}

	fs.err = errors.New("rate limited")
	if err := d.OnRoundResolved(context.Background(), g, sampleResult()); err == nil {
		t.Fatalf("expected send error")
	}
}
