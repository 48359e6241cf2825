package fetch

import (
	"math/rand/v2"
	"net/http"
	"sync"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.8",
	"en-GB,en-US;q=0.9,en;q=0.8",
	"en-US,en;q=0.9,es;q=0.7",
}

var acceptValues = []string{
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
}

// Fingerprint is the set of browser-identifying headers for one request.
type Fingerprint struct {
	UserAgent      string
	AcceptLanguage string
	Accept         string
	DoNotTrack     bool
}

// Apply writes the fingerprint into h without overwriting headers the
// caller already set.
func (f Fingerprint) Apply(h http.Header) {
	setDefault(h, "User-Agent", f.UserAgent)
	setDefault(h, "Accept-Language", f.AcceptLanguage)
	setDefault(h, "Accept", f.Accept)
	if f.DoNotTrack {
		setDefault(h, "DNT", "1")
	}
}

func setDefault(h http.Header, key, value string) {
	if value != "" && h.Get(key) == "" {
		h.Set(key, value)
	}
}

// Fingerprinter draws randomized fingerprints.
type Fingerprinter struct {
	mu         sync.Mutex
	rng        *rand.Rand
	userAgents []string
}

// NewFingerprinter creates a Fingerprinter drawing from userAgents.
func NewFingerprinter(userAgents []string, rng *rand.Rand) *Fingerprinter {
	if len(userAgents) == 0 {
		userAgents = defaultUserAgents
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // header variation only
	}
	return &Fingerprinter{rng: rng, userAgents: userAgents}
}

// Next returns a new random fingerprint.
func (f *Fingerprinter) Next() Fingerprint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Fingerprint{
		UserAgent:      f.userAgents[f.rng.IntN(len(f.userAgents))],
		AcceptLanguage: acceptLanguages[f.rng.IntN(len(acceptLanguages))],
		Accept:         acceptValues[f.rng.IntN(len(acceptValues))],
		DoNotTrack:     f.rng.IntN(2) == 0,
	}
}
