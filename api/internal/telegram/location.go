package telegram

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reality-quest/api/internal/location"
)

// locationBook: последняя присланная позиция чата; расходуется одним раундом.
type locationBook struct {
	m sync.Map // chatID -> location.Position
}

func (b *locationBook) put(chatID int64, p location.Position) { b.m.Store(chatID, p) }

func (b *locationBook) take(chatID int64) (location.Position, bool) {
	v, ok := b.m.LoadAndDelete(chatID)
	if !ok {
		return location.Position{}, false
	}
	return v.(location.Position), true
}

func (r *Router) acceptLocation(chatID int64, l tgbotapi.Location) {
	r.locations.put(chatID, location.Position{
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Accuracy:  l.HorizontalAccuracy,
	})
	r.send(chatID, "📍 Location received. Now send the video.")
}
