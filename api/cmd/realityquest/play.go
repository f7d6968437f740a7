package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"reality-quest/api/internal/app"
	"reality-quest/api/internal/location"
	"reality-quest/api/internal/quest"
	"reality-quest/api/internal/types"
)

var (
	clipFlag      string
	latFlag       float64
	lngFlag       float64
	accuracyFlag  float64
	debugJSONFlag bool
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Run one round with the local camera and microphone",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runRound(cmd, "")
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify --clip FILE",
	Short: "Run one round on a recorded clip",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if clipFlag == "" {
			return fmt.Errorf("--clip is required")
		}
		return runRound(cmd, clipFlag)
	},
}

func init() {
	for _, c := range []*cobra.Command{playCmd, verifyCmd} {
		c.Flags().Float64Var(&latFlag, "lat", 0, "latitude of this attempt")
		c.Flags().Float64Var(&lngFlag, "lng", 0, "longitude of this attempt")
		c.Flags().Float64Var(&accuracyFlag, "accuracy", 25, "location accuracy in meters")
		c.Flags().BoolVar(&debugJSONFlag, "debug", false, "print the round debug payload as JSON")
	}
	verifyCmd.Flags().StringVar(&clipFlag, "clip", "", "video file to judge")
}

func runRound(cmd *cobra.Command, clip string) error {
	ctx := cmd.Context()
	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	if !a.HasEngines() {
		return app.ErrNoEngines
	}

	o, err := a.Player(ctx, playerID(a), clip == "")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ch := o.Snapshot().Challenge
	fmt.Fprintln(out, formatChallenge(ch))

	opts := quest.RoundOptions{
		OnTick:  func(r int) { fmt.Fprintf(out, "\r⏱  %2d s ", r) },
		OnPhase: func(p quest.Phase) { a.Log.Debug("phase " + string(p)) },
	}
	if clip != "" {
		opts.Device = a.ClipDevice(clip)
	}
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
		opts.Location = location.Static{Position: location.Position{Latitude: latFlag, Longitude: lngFlag, Accuracy: accuracyFlag}}
	}

	res, err := o.Verify(ctx, opts)
	fmt.Fprintln(out)
	if err != nil {
		if debugJSONFlag {
			printJSON(out, o.Snapshot().LastDebug)
		}
		return err
	}
	fmt.Fprintln(out, formatOutcome(res))
	if debugJSONFlag {
		printJSON(out, res.Debug)
	}
	return nil
}

func formatChallenge(ch types.Challenge) string {
	s := fmt.Sprintf("🎯 %s (%d pts)\n   %s", ch.Title, ch.Points, ch.Description)
	if lc := ch.LocationCheck; lc != nil {
		s += fmt.Sprintf("\n   📍 %s, radius %gm", lc.Label, lc.RadiusMeters)
	}
	return s
}

func formatOutcome(o *quest.Outcome) string {
	j := o.Judgement
	var b strings.Builder
	if j.Success {
		fmt.Fprintf(&b, "✅ SUCCESS +%d", j.ScoreAdded)
	} else {
		b.WriteString("❌ FAILED")
	}
	fmt.Fprintf(&b, "  confidence %.2f\n", j.Confidence)
	fmt.Fprintf(&b, "   reason:   %s\n", j.Reason)
	if len(j.DetectedActions) > 0 {
		fmt.Fprintf(&b, "   actions:  %s\n", strings.Join(j.DetectedActions, ", "))
	}
	if j.SafetyNotes != "" {
		fmt.Fprintf(&b, "   safety:   %s\n", j.SafetyNotes)
	}
	fmt.Fprintf(&b, "   location: %s\n", j.LocationMessage)
	fmt.Fprintf(&b, "score %d · streak %d\nnext: %s", o.State.Score, o.State.Streak, o.Next.Title)
	return b.String()
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
