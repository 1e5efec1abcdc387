package pricing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rates holds units of each currency per US dollar.
type Rates map[string]decimal.Decimal

func DefaultRates(kesPerUSD decimal.Decimal) Rates {
	return Rates{
		CurrencyUSD: decimal.NewFromInt(1),
		CurrencyKES: kesPerUSD,
	}
}

// ToUSD converts amount in currency to dollars. Unknown currencies are
// treated as dollars.
func (r Rates) ToUSD(amount decimal.Decimal, currency string) decimal.Decimal {
	rate, ok := r[currency]
	if !ok || !rate.IsPositive() {
		return amount
	}
	return amount.Div(rate)
}

// EffectivePrice is the promotional price when one is set and its window,
// if any, contains now; otherwise the regular price.
func (t Tier) EffectivePrice(now time.Time) decimal.Decimal {
	if t.IsFree {
		return decimal.Zero
	}
	if t.PromotionalPrice == nil {
		return t.Price
	}
	if t.PromotionStartDate != nil && now.Before(*t.PromotionStartDate) {
		return t.Price
	}
	if t.PromotionEndDate != nil && !now.Before(*t.PromotionEndDate) {
		return t.Price
	}
	return *t.PromotionalPrice
}

// Sort returns the active tiers cheapest first: free tiers before paid,
// paid tiers by dollar-converted effective price, ties by billing frequency.
func Sort(tiers []Tier, rates Rates, now time.Time) []Tier {
	active := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.IsActive {
			active = append(active, t)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.IsFree != b.IsFree {
			return a.IsFree
		}
		if !a.IsFree {
			pa := rates.ToUSD(a.EffectivePrice(now), a.CurrencyCode)
			pb := rates.ToUSD(b.EffectivePrice(now), b.CurrencyCode)
			if !pa.Equal(pb) {
				return pa.LessThan(pb)
			}
		}
		return frequencyRank[a.PaymentFrequency] < frequencyRank[b.PaymentFrequency]
	})
	return active
}

// LowestSummary describes the cheapest active tier, e.g. "Free per month"
// or "KES 1,300.00 per month". It is empty when no tier is active.
func LowestSummary(tiers []Tier, rates Rates, now time.Time) string {
	sorted := Sort(tiers, rates, now)
	if len(sorted) == 0 {
		return ""
	}
	return Describe(sorted[0], now)
}

func Describe(t Tier, now time.Time) string {
	period := frequencyPeriod[t.PaymentFrequency]
	if period == "" {
		period = t.PaymentFrequency
	}
	if t.IsFree {
		return "Free per " + period
	}
	return fmt.Sprintf("%s %s per %s", t.CurrencyCode, FormatAmount(t.EffectivePrice(now)), period)
}

// FormatAmount renders two decimals with thousands separators.
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}
