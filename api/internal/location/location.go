// Package location - геопроверка попытки: снимок позиции и сравнение с радиусом.
package location

import (
	"fmt"
	"math"
	"strings"

	"reality-quest/api/internal/types"
)

const EarthRadiusMeters = 6371000.0

// DistanceMeters: haversine.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

const (
	prefixSuccess = "Success"
	prefixFailed  = "Failed"
	prefixSkipped = "Skipped"
)

// Evaluate: текст итога геопроверки. Граница радиуса включительно.
func Evaluate(ch types.Challenge, s types.LocationSnapshot) string {
	lc := ch.LocationCheck
	if lc == nil {
		return prefixSkipped + " (no location requirement)"
	}
	if s.Status != types.LocationAvailable {
		msg := s.Message
		if msg == "" {
			msg = string(s.Status)
		}
		return fmt.Sprintf("%s (%s)", prefixSkipped, msg)
	}

	d := DistanceMeters(deref(s.Latitude), deref(s.Longitude), lc.Lat, lc.Lng)
	verdict := prefixFailed
	if d <= lc.RadiusMeters {
		verdict = prefixSuccess
	}
	return fmt.Sprintf("%s (%dm / radius %gm, accuracy ±%dm)",
		verdict, int64(math.Round(d)), lc.RadiusMeters, int64(math.Round(deref(s.Accuracy))))
}

// IsFailed: только явный провал; пропуск провалом не считается.
func IsFailed(message string) bool {
	return strings.HasPrefix(message, prefixFailed)
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
