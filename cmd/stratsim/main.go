package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	cl "stratsim/internal/cli"
	"stratsim/internal/config"
	"stratsim/internal/game"
	"stratsim/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type globals struct {
	apiBase       string
	timeout       time.Duration
	gameID        string
	participantID string
}

func main() {
	cfg := config.LoadCLIFromEnv()
	g := &globals{apiBase: cfg.APIBaseURL, timeout: cfg.Timeout}

	root := &cobra.Command{
		Use:          "stratsim",
		Short:        "Smartphone industry strategy simulation client",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupColor()
		},
	}
	root.PersistentFlags().StringVar(&g.apiBase, "api", g.apiBase, "API base URL")
	root.PersistentFlags().StringVar(&g.gameID, "game", "", "game id (defaults to the saved profile)")
	root.PersistentFlags().StringVar(&g.participantID, "as", "", "participant id (defaults to the saved profile)")

	root.AddCommand(
		newUseCmd(g),
		newGameCmd(g),
		newDecisionCmd(g),
		newSyncCmd(g),
		newSimulateCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (g *globals) client() *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(g.apiBase), "/"), g.timeout)
}

func (g *globals) target(needParticipant bool) (string, string, error) {
	p, err := cl.LoadProfile()
	if err != nil {
		return "", "", err
	}
	gameID, pid, err := p.Resolve(g.gameID, g.participantID)
	if err != nil {
		return "", "", err
	}
	if needParticipant && pid == "" {
		return "", "", errors.New("no participant selected, pass --as or run `stratsim use`")
	}
	return gameID, pid, nil
}

func newUseCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "use",
		Short: "Remember --game and --as for later commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.gameID == "" && g.participantID == "" {
				return cl.ClearProfile()
			}
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			if g.gameID != "" {
				p.GameID = g.gameID
			}
			if g.participantID != "" {
				p.ParticipantID = g.participantID
			}
			if err := cl.SaveProfile(p); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Using game %s as %s.", p.GameID, orDash(p.ParticipantID)))
			return nil
		},
	}
}

func newGameCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Create, inspect and advance games",
	}
	cmd.AddCommand(
		newGameCreateCmd(g),
		newGameListCmd(g),
		newGameShowCmd(g),
		newGameAdvanceCmd(g),
		newGameRoundCmd(g),
	)
	return cmd
}

func newGameCreateCmd(g *globals) *cobra.Command {
	var (
		id     string
		rounds int
		teams  []string
		seed   int64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a game; teams are given as id or id:Name",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := game.CreateGameInput{ID: id, TotalRounds: rounds}
			for _, t := range teams {
				tid, name, _ := strings.Cut(t, ":")
				in.Teams = append(in.Teams, game.TeamInput{ID: strings.TrimSpace(tid), Name: strings.TrimSpace(name)})
			}
			if cmd.Flags().Changed("seed") {
				in.Seed = &seed
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			created, err := g.client().CreateGame(ctx, in)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Game %s created: %d teams, %d rounds, seed %d.", created.ID, len(created.Participants), created.TotalRounds, created.Seed))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "game id (generated when empty)")
	cmd.Flags().IntVar(&rounds, "rounds", 8, "number of rounds")
	cmd.Flags().StringSliceVar(&teams, "team", nil, "team as id or id:Name, repeatable")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed for reproducible games")
	return cmd
}

func newGameListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List games on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			ids, err := g.client().ListGames(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				printInfo("No games yet.")
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func newGameShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show standings, or your company when --as is set",
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, pid, err := g.target(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			client := g.client()
			if pid != "" {
				view, err := client.View(ctx, gameID, pid)
				if err != nil {
					return err
				}
				renderView(view)
				return nil
			}
			snap, err := client.Snapshot(ctx, gameID)
			if err != nil {
				return err
			}
			renderGame(snap)
			return nil
		},
	}
}

func newGameAdvanceCmd(g *globals) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Resolve the current round",
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, _, err := g.target(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			result, err := g.client().Advance(ctx, gameID, force)
			var apiErr *cl.APIError
			if errors.As(err, &apiErr) && len(apiErr.Missing) > 0 {
				printWarn(fmt.Sprintf("Round is waiting on %s. Use --force to resolve anyway.", strings.Join(apiErr.Missing, ", ")))
				return err
			}
			if err != nil {
				return err
			}
			renderRound(result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "resolve even if decisions are missing")
	return cmd
}

func newGameRoundCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "round <n>",
		Short: "Show the record of a resolved round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("round must be a number: %w", err)
			}
			gameID, _, err := g.target(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			result, err := g.client().Round(ctx, gameID, n)
			if err != nil {
				return err
			}
			renderRound(result)
			return nil
		},
	}
}

func newDecisionCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decision",
		Short: "Prepare and submit round decisions",
	}
	cmd.AddCommand(newDecisionTemplateCmd(g), newDecisionSubmitCmd(g))
	return cmd
}

func newDecisionTemplateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "template",
		Short: "Print a decision that keeps your current products, to edit and submit",
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, pid, err := g.target(true)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			view, err := g.client().View(ctx, gameID, pid)
			if err != nil {
				return err
			}
			d := game.NoChange(&view.Company)
			d.RD.Focus = map[string]float64{}
			out, err := json.MarshalIndent(d, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newDecisionSubmitCmd(g *globals) *cobra.Command {
	var (
		file  string
		round int
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a decision file for the open round",
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, pid, err := g.target(true)
			if err != nil {
				return err
			}
			raw, err := readDecision(file)
			if err != nil {
				return err
			}
			if _, err := game.DecodeDecision(raw); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			client := g.client()
			if round == 0 {
				view, err := client.View(ctx, gameID, pid)
				if err != nil {
					return queueOnNetworkError(err, "the round is unknown, pass --round to queue offline", nil)
				}
				round = view.Round
			}
			err = client.SubmitDecision(ctx, gameID, pid, round, raw)
			if err == nil {
				printSuccess(fmt.Sprintf("Decision for round %d submitted.", round))
				return nil
			}
			return queueOnNetworkError(err, "", &syncq.Entry{
				GameID:        gameID,
				ParticipantID: pid,
				Round:         round,
				Decision:      raw,
				ID:            uuid.NewString(),
				QueuedAt:      time.Now().UTC(),
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "decision JSON file, - for stdin")
	cmd.Flags().IntVar(&round, "round", 0, "round number (defaults to the open round)")
	return cmd
}

func readDecision(path string) (json.RawMessage, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func newSyncCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay decisions queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := g.client()
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			res, err := syncq.Drain(ctx, func(ctx context.Context, e syncq.Entry) error {
				err := client.SubmitDecision(ctx, e.GameID, e.ParticipantID, e.Round, e.Decision)
				if cl.IsRejected(err) {
					printError(fmt.Sprintf("Dropped %s round %d for %s: %v", e.GameID, e.Round, e.ParticipantID, err))
					return fmt.Errorf("%w: %v", syncq.ErrRejected, err)
				}
				return err
			})
			if err != nil {
				printError(fmt.Sprintf("Sync stopped: %v", err))
			}
			printSuccess(fmt.Sprintf("Sync complete: sent=%d dropped=%d remaining=%d", res.Sent, len(res.Rejected), res.Pending))
			return nil
		},
	}
}

// queueOnNetworkError queues entry when the API could not be reached. API
// answers are returned unchanged.
func queueOnNetworkError(err error, hint string, entry *syncq.Entry) error {
	if err == nil {
		return nil
	}
	var apiErr *cl.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	if entry == nil {
		return fmt.Errorf("request failed, %s: %w", hint, err)
	}
	if qerr := syncq.Push(*entry); qerr != nil {
		return fmt.Errorf("request failed and queueing failed (%v): %w", qerr, err)
	}
	printWarn(fmt.Sprintf("API unreachable, decision queued as %s. Run `stratsim sync` later.", entry.ID))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
