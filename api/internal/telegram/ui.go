package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reality-quest/api/internal/quest"
	"reality-quest/api/internal/types"
	"reality-quest/api/internal/util"
)

const (
	cbNextChallenge = "next_challenge"
	maxMessageRunes = 3900
)

func makeNextKeyboard() tgbotapi.InlineKeyboardMarkup {
	btn := tgbotapi.NewInlineKeyboardButtonData("🎲 Another challenge", cbNextChallenge)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(btn))
}

func challengeText(ch types.Challenge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 %s (%d pts)\n%s", ch.Title, ch.Points, ch.Description)
	if lc := ch.LocationCheck; lc != nil {
		fmt.Fprintf(&b, "\n📍 Must be done at %s (within %gm). Share your location first.", lc.Label, lc.RadiusMeters)
	}
	return b.String()
}

func challengeMessage(chatID int64, ch types.Challenge) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, challengeText(ch))
	msg.ReplyMarkup = makeNextKeyboard()
	return msg
}

func scoreText(s types.AppState) string {
	return fmt.Sprintf("🏆 Score: %d\n🔥 Streak: %d", s.Score, s.Streak)
}

func historyText(h []types.HistoryRecord) string {
	if len(h) == 0 {
		return "No rounds yet."
	}
	var b strings.Builder
	for i, rec := range h {
		mark := "❌"
		if rec.Success {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%d. %s %s +%d · %s\n   %s\n", i+1, mark, rec.ChallengeTitle, rec.ScoreAdded,
			rec.Timestamp.Format("2006-01-02 15:04"), util.TruncateRunes(rec.Reason, 160))
	}
	return strings.TrimRight(b.String(), "\n")
}

func verdictText(out *quest.Outcome) string {
	j := out.Judgement
	var b strings.Builder
	if j.Success {
		fmt.Fprintf(&b, "✅ Success! +%d\n", j.ScoreAdded)
	} else {
		b.WriteString("❌ Not this time.\n")
	}
	fmt.Fprintf(&b, "Confidence: %.0f%%\n", j.Confidence*100)
	if j.Reason != "" {
		b.WriteString("Reason: " + j.Reason + "\n")
	}
	if len(j.DetectedActions) > 0 {
		b.WriteString("Seen: " + strings.Join(j.DetectedActions, ", ") + "\n")
	}
	if j.SafetyNotes != "" {
		b.WriteString("⚠️ " + j.SafetyNotes + "\n")
	}
	b.WriteString("📍 " + j.LocationMessage + "\n\n")
	b.WriteString(scoreText(out.State))
	return util.TruncateRunes(b.String(), maxMessageRunes)
}
