package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"stratsim/internal/game"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"golang.org/x/term"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)

	plainOutput bool

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	leaderStyle = cellStyle.Foreground(lipgloss.Color("42"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func setupColor() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		plainOutput = true
		color.NoColor = true
	}
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

// newTable renders boxed tables on a terminal and ASCII ones otherwise. The
// first data row is highlighted when highlightFirst is set.
func newTable(highlightFirst bool, headers ...string) *table.Table {
	t := table.New().Headers(headers...)
	if plainOutput {
		return t.Border(lipgloss.ASCIIBorder()).StyleFunc(func(int, int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	return t.Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case highlightFirst && row == 0:
				return leaderStyle
			default:
				return cellStyle
			}
		})
}

func renderRankings(rankings []game.Ranking) {
	t := newTable(true, "#", "Company", "Total", "Financial", "Market", "Innovation", "Sustainability")
	for _, r := range rankings {
		t.Row(
			strconv.Itoa(r.Rank),
			companyLabel(r.ParticipantID, r.Name),
			score(r.Total),
			score(r.Financial),
			score(r.Market),
			score(r.Innovation),
			score(r.Sustainability),
		)
	}
	fmt.Println(t)
}

func renderGame(g *game.Game) {
	accent.Printf("Game %s\n", g.ID)
	fmt.Printf("Round %d of %d, phase %s, seed %d\n", g.Round, g.TotalRounds, g.Phase, g.Seed)
	if !g.Finished() {
		if missing := g.Missing(); len(missing) > 0 {
			fmt.Printf("Waiting on: %s\n", strings.Join(missing, ", "))
		} else {
			printSuccess("All decisions are in.")
		}
	}
	renderRankings(game.Rank(g))
}

func renderView(v *game.ParticipantView) {
	c := v.Company
	accent.Printf("%s in game %s\n", companyLabel(c.ID, c.Name), v.GameID)
	status := "open"
	if v.Submitted {
		status = "submitted"
	}
	fmt.Printf("Round %d of %d, phase %s, decision %s\n", v.Round, v.TotalRounds, v.Phase, status)
	fmt.Printf("Capital %s  Revenue %s  Profit %s  Share %s\n",
		money(c.Capital), money(c.Revenue), money(c.Profit), percent(c.MarketShare))
	if c.Distressed {
		printWarn("Capital is negative: spending is frozen until it recovers.")
	}

	products := newTable(false, "Segment", "Active", "Price", "Quality", "Features", "Volume", "Marketing")
	segments := make([]string, 0, len(c.Products))
	for seg := range c.Products {
		segments = append(segments, seg)
	}
	sort.Strings(segments)
	for _, seg := range segments {
		p := c.Products[seg]
		products.Row(seg, yesNo(p.Active), strconv.FormatFloat(p.Price, 'f', 2, 64), score(p.Quality),
			score(p.Features), strconv.FormatInt(p.ProductionVolume, 10), money(p.MarketingBudget))
	}
	fmt.Println(products)

	if prev := v.PreviousResults; prev != nil {
		fmt.Printf("Round %d finished at rank %d\n", prev.Round, prev.Rank)
	}
	for _, e := range v.Events {
		warn.Printf("Event: %s\n", e.Title)
		if e.Description != "" {
			fmt.Printf("  %s\n", e.Description)
		}
	}
	if len(v.Competitors) > 0 {
		comp := newTable(false, "Competitor", "Share", "Brand", "Score")
		for _, o := range v.Competitors {
			comp.Row(companyLabel(o.ID, o.Name), percent(o.MarketShare), score(o.BrandStrength), score(o.TotalScore))
		}
		fmt.Println(comp)
	}
}

func renderRound(r *game.RoundResult) {
	accent.Printf("Round %d resolved\n", r.Round)
	if len(r.CarriedFor) > 0 {
		printWarn(fmt.Sprintf("No decision from %s, previous products carried over.", strings.Join(r.CarriedFor, ", ")))
	}
	for _, e := range r.Events {
		warn.Printf("Event: %s\n", e.Title)
	}
	renderRankings(r.Rankings)
}

func companyLabel(id, name string) string {
	if name == "" || name == id {
		return id
	}
	return name + " (" + id + ")"
}

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func percent(v float64) string {
	return strconv.FormatFloat(v*100, 'f', 1, 64) + "%"
}

// money shows whole currency units in millions.
func money(v int64) string {
	return decimal.NewFromInt(v).Shift(-6).StringFixed(2) + "M"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
