// Package notify posts round standings to a Discord channel.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"stratsim/internal/config"
	"stratsim/internal/game"
)

type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord is a game.RoundHook that announces each resolved round.
type Discord struct {
	session   messageSender
	channelID string
}

func NewDiscord(cfg config.NotifyConfig) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{session: session, channelID: cfg.ChannelID}, nil
}

func (d *Discord) OnRoundResolved(ctx context.Context, g *game.Game, result *game.RoundResult) error {
	if _, err := d.session.ChannelMessageSend(d.channelID, Standings(g, result), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Standings renders the round summary posted to the channel.
func Standings(g *game.Game, result *game.RoundResult) string {
	var b strings.Builder
	if g.Finished() {
		fmt.Fprintf(&b, "**Game %s finished after %d rounds**\n", g.ID, g.TotalRounds)
	} else {
		fmt.Fprintf(&b, "**Game %s: round %d/%d resolved**\n", g.ID, result.Round, g.TotalRounds)
	}
	for _, ev := range result.Events {
		fmt.Fprintf(&b, "> %s: %s\n", ev.Title, ev.Description)
	}
	if len(result.CarriedFor) > 0 {
		fmt.Fprintf(&b, "No decision from %s, previous plan applied.\n", strings.Join(result.CarriedFor, ", "))
	}
	b.WriteString("```\n")
	fmt.Fprintf(&b, "%-4s %-20s %7s\n", "#", "Company", "Score")
	for _, r := range result.Rankings {
		fmt.Fprintf(&b, "%-4d %-20s %7.1f\n", r.Rank, truncate(r.Name, 20), r.Total)
	}
	b.WriteString("```")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var _ game.RoundHook = (*Discord)(nil)
