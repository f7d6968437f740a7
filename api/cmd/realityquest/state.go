package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var errNoToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show score, streak and the current challenge",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, cleanup, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()
		o, err := a.Player(cmd.Context(), playerID(a), false)
		if err != nil {
			return err
		}
		s := o.Snapshot()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "player %s: score %d · streak %d\n", s.PlayerID, s.State.Score, s.State.Streak)
		fmt.Fprintln(out, formatChallenge(s.Challenge))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the last rounds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, cleanup, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()
		o, err := a.Player(cmd.Context(), playerID(a), false)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if n, _ := cmd.Flags().GetInt("rounds"); n > 0 {
			rows, err := o.Rounds(cmd.Context(), n)
			if err != nil {
				return err
			}
			for _, r := range rows {
				mark := "✗"
				if r.Success {
					mark = "✓"
				}
				fmt.Fprintf(out, "%s %s  %s  %-28s +%d\n", mark, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.ID, r.ChallengeID, r.ScoreAdded)
			}
			return nil
		}
		h := o.Snapshot().History
		if len(h) == 0 {
			fmt.Fprintln(out, "no rounds yet")
			return nil
		}
		for _, r := range h {
			mark := "✗"
			if r.Success {
				mark = "✓"
			}
			fmt.Fprintf(out, "%s %s  %-28s +%-4d %s\n", mark, r.Timestamp.Local().Format("2006-01-02 15:04"), r.ChallengeTitle, r.ScoreAdded, r.Reason)
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset score, streak and history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, cleanup, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()
		o, err := a.Player(cmd.Context(), playerID(a), false)
		if err != nil {
			return err
		}
		if err := o.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "reset done")
		return nil
	},
}

var challengeCmd = &cobra.Command{
	Use:   "challenge [custom text...]",
	Short: "Pick a new challenge, or set a custom one (--clear removes it)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()
		o, err := a.Player(cmd.Context(), playerID(a), false)
		if err != nil {
			return err
		}
		clearCustom, _ := cmd.Flags().GetBool("clear")
		text := strings.TrimSpace(strings.Join(args, " "))
		switch {
		case clearCustom:
			_, err = o.SetCustomChallenge(cmd.Context(), "")
		case text != "":
			_, err = o.SetCustomChallenge(cmd.Context(), text)
		default:
			_, err = o.NewChallenge()
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatChallenge(o.Snapshot().Challenge))
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("rounds", 0, "show the last N rounds from the round journal instead")
	challengeCmd.Flags().Bool("clear", false, "remove the custom challenge")
}
