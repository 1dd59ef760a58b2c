// Package recurring infers subscriptions from transaction history by
// clustering outflows per merchant and classifying the cadence of the
// gaps between them.
package recurring

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"flint/internal/domain/transaction"
)

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Subscription is one detected recurring payment.
type Subscription struct {
	Merchant          string    `json:"merchant"`
	Frequency         Frequency `json:"frequency"`
	Amount            float64   `json:"amount"` // most recent charge, positive
	MonthlyEquivalent float64   `json:"monthlyEquivalent"`
	Confidence        float64   `json:"confidence"`
	Occurrences       int       `json:"occurrences"`
	LastDate          time.Time `json:"lastDate"`
	NextBillingDate   time.Time `json:"nextBillingDate"`
}

// Interval tolerance bands in days. Real billing dates wobble around
// weekends and month lengths, so each cadence accepts a range.
type band struct {
	frequency Frequency
	min, max  int
	// share of intervals that must fall in the band
	threshold float64
	// confidence ceiling; yearly is a fixed value since a couple of
	// data points prove very little
	ceiling float64
}

var bands = []band{
	{FrequencyWeekly, 6, 8, 0.7, 0.9},
	{FrequencyMonthly, 28, 32, 0.7, 0.9},
	{FrequencyQuarterly, 88, 95, 0.5, 0.8},
	{FrequencyYearly, 360, 370, 0, 0.7},
}

const minConfidence = 0.6

// Detect clusters the transactions by merchant and returns the qualified
// subscriptions sorted by monthly-equivalent spend, highest first. Only
// outflows participate. now anchors the next-billing projection.
func Detect(txns []*transaction.Transaction, now time.Time) []Subscription {
	groups := make(map[string][]*transaction.Transaction)
	for _, t := range txns {
		if t.Amount >= 0 {
			continue
		}
		key := merchantKey(t)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], t)
	}

	var subs []Subscription
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		if sub, ok := classify(group, now); ok {
			subs = append(subs, sub)
		}
	}

	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].MonthlyEquivalent > subs[j].MonthlyEquivalent
	})

	return subs
}

func classify(group []*transaction.Transaction, now time.Time) (Subscription, bool) {
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].Date.Before(group[j].Date)
	})

	intervals := make([]int, 0, len(group)-1)
	for i := 1; i < len(group); i++ {
		days := int(math.Round(group[i].Date.Sub(group[i-1].Date).Hours() / 24))
		intervals = append(intervals, days)
	}

	best, ok := bestBand(intervals)
	if !ok {
		return Subscription{}, false
	}

	matching := countInBand(intervals, best)
	confidence := float64(matching) / float64(len(intervals))
	if best.frequency == FrequencyYearly {
		confidence = best.ceiling
	} else if confidence > best.ceiling {
		confidence = best.ceiling
	}
	if confidence <= minConfidence {
		return Subscription{}, false
	}

	last := group[len(group)-1]
	amount := math.Abs(last.Amount)

	return Subscription{
		Merchant:          displayMerchant(last),
		Frequency:         best.frequency,
		Amount:            amount,
		MonthlyEquivalent: monthlyEquivalent(amount, best.frequency),
		Confidence:        confidence,
		Occurrences:       len(group),
		LastDate:          last.Date,
		NextBillingDate:   nextBillingDate(last.Date, best.frequency, now),
	}, true
}

// bestBand picks the band the intervals fit best, subject to each band's
// qualification threshold. Yearly qualifies on a single matching interval.
func bestBand(intervals []int) (band, bool) {
	var best band
	bestRatio := -1.0
	found := false

	for _, b := range bands {
		matching := countInBand(intervals, b)
		if matching == 0 {
			continue
		}
		ratio := float64(matching) / float64(len(intervals))

		qualified := ratio >= b.threshold
		if b.frequency == FrequencyYearly {
			qualified = true
		}
		if !qualified {
			continue
		}

		if ratio > bestRatio {
			best = b
			bestRatio = ratio
			found = true
		}
	}

	return best, found
}

func countInBand(intervals []int, b band) int {
	n := 0
	for _, d := range intervals {
		if d >= b.min && d <= b.max {
			n++
		}
	}
	return n
}

// nextBillingDate advances from the last charge by whole calendar units
// until strictly in the future. Calendar arithmetic, not fixed day counts,
// so a Jan 31 monthly charge lands on a real date every month.
func nextBillingDate(last time.Time, freq Frequency, now time.Time) time.Time {
	next := last
	for !next.After(now) {
		switch freq {
		case FrequencyWeekly:
			next = next.AddDate(0, 0, 7)
		case FrequencyMonthly:
			next = next.AddDate(0, 1, 0)
		case FrequencyQuarterly:
			next = next.AddDate(0, 3, 0)
		case FrequencyYearly:
			next = next.AddDate(1, 0, 0)
		}
	}
	return next
}

func monthlyEquivalent(amount float64, freq Frequency) float64 {
	switch freq {
	case FrequencyWeekly:
		return amount * 4.33
	case FrequencyQuarterly:
		return amount / 3
	case FrequencyYearly:
		return amount / 12
	default:
		return amount
	}
}

var (
	trailingDigits = regexp.MustCompile(`[#<]?\d+$`)
	multiSpace     = regexp.MustCompile(`\s+`)
)

var descriptionPrefixes = []string{
	"pos ", "debit ", "ach ", "recurring ", "paypal *", "sq *", "tst* ",
}

// merchantKey prefers the provider-supplied merchant name; otherwise it
// cleans the raw description enough that "NETFLIX.COM 0342" and
// "NETFLIX.COM 0377" group together.
func merchantKey(t *transaction.Transaction) string {
	if t.MerchantName != "" {
		return strings.ToLower(strings.TrimSpace(t.MerchantName))
	}
	return cleanDescription(t.Description)
}

func cleanDescription(desc string) string {
	s := strings.ToLower(strings.TrimSpace(desc))
	for _, prefix := range descriptionPrefixes {
		s = strings.TrimPrefix(s, prefix)
	}
	s = trailingDigits.ReplaceAllString(s, "")
	s = strings.Trim(s, " *-")
	s = multiSpace.ReplaceAllString(s, " ")
	return s
}

func displayMerchant(t *transaction.Transaction) string {
	if t.MerchantName != "" {
		return t.MerchantName
	}
	return titleCase(cleanDescription(t.Description))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
