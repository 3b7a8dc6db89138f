package geocoding

import (
	"context"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSuffix narrows free-text venues to the city the events are in.
const DefaultSuffix = ", Buenos Aires, Argentina"

// MinInterval is the slowest spacing the public Nominatim usage policy allows.
const MinInterval = time.Second

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	spaces        = regexp.MustCompile(`\s+`)
)

// VenueQuery turns a venue string into a search query: parenthetical notes
// are dropped, then everything after the first comma, then the suffix is
// appended. Parentheses go first so a comma inside them cannot cut the
// venue in half.
func VenueQuery(venue, suffix string) string {
	s := parenthetical.ReplaceAllString(venue, "")
	if i := strings.Index(s, ","); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))
	if s == "" {
		return ""
	}
	return s + suffix
}

// Throttle spaces outbound lookups at least interval apart.
type Throttle struct {
	limiter *rate.Limiter
}

func NewThrottle(interval time.Duration) *Throttle {
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next lookup may be sent.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
