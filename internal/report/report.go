// Package report summarizes a scored batch: class shares, the hourly
// fraud pattern, amount statistics per class and a short preview.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/decision"
	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

// PreviewRows is the number of leading rows included in a report.
const PreviewRows = 10

// Report is the summary of one scored batch.
type Report struct {
	BatchID   string    `json:"batchId,omitempty"`
	UserEmail string    `json:"userEmail,omitempty"`
	BundleID  string    `json:"bundleId,omitempty"`
	Threshold float64   `json:"threshold"`
	CreatedAt time.Time `json:"createdAt"`

	TotalRows  int     `json:"totalRows"`
	FraudCount int     `json:"fraudCount"`
	LegitCount int     `json:"legitCount"`
	FraudShare float64 `json:"fraudShare"` // percent, 1 decimal
	LegitShare float64 `json:"legitShare"`

	Hourly  [24]HourBucket `json:"hourly"`
	Amounts AmountsByClass `json:"amounts"`
	Preview []PreviewRow   `json:"preview"`
}

// HourBucket counts predictions for one hour of day.
type HourBucket struct {
	Hour  int `json:"hour"`
	Legit int `json:"legit"`
	Fraud int `json:"fraud"`
}

// AmountsByClass splits amount statistics by predicted class.
type AmountsByClass struct {
	Legit AmountSummary `json:"legit"`
	Fraud AmountSummary `json:"fraud"`
}

// AmountSummary describes the amounts of one class. Totals are summed
// in decimal so they match the uploaded values to the cent.
type AmountSummary struct {
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
	Mean   decimal.Decimal `json:"mean"`
	Min    float64         `json:"min"`
	Median float64         `json:"median"`
	Max    float64         `json:"max"`
}

// PreviewRow is one line of the report preview.
type PreviewRow struct {
	Amount           float64 `json:"amount"`
	FraudProbability float64 `json:"fraudProbability"`
	Prediction       int     `json:"prediction"`
}

// Build summarizes scored records.
func Build(records []domain.ScoredRecord) *Report {
	r := &Report{TotalRows: len(records)}
	for h := range r.Hourly {
		r.Hourly[h].Hour = h
	}

	var legit, fraud []float64
	for i := range records {
		rec := &records[i]
		hour := rec.Record.Hour()
		amount := rec.Record.Amount()

		if rec.Prediction == domain.PredictionFraud {
			r.FraudCount++
			r.Hourly[hour].Fraud++
			fraud = append(fraud, amount)
		} else {
			r.LegitCount++
			r.Hourly[hour].Legit++
			legit = append(legit, amount)
		}

		if i < PreviewRows {
			r.Preview = append(r.Preview, PreviewRow{
				Amount:           amount,
				FraudProbability: rec.FraudProbability,
				Prediction:       rec.Prediction,
			})
		}
	}

	if r.TotalRows > 0 {
		r.FraudShare = share(r.FraudCount, r.TotalRows)
		r.LegitShare = share(r.LegitCount, r.TotalRows)
	}
	r.Amounts.Legit = summarize(legit)
	r.Amounts.Fraud = summarize(fraud)
	return r
}

// FromResult builds a report for a freshly scored batch.
func FromResult(result *domain.BatchResult, userEmail string, at time.Time) *Report {
	r := Build(result.Records)
	r.BatchID = result.BatchID
	r.UserEmail = userEmail
	r.BundleID = result.BundleID
	r.Threshold = result.Threshold
	r.CreatedAt = at
	return r
}

// FromHistory builds a report for a stored history entry.
func FromHistory(entry *domain.HistoryEntry, records []domain.ScoredRecord) *Report {
	r := Build(records)
	r.BatchID = entry.ID
	r.UserEmail = entry.UserEmail
	r.BundleID = entry.BundleID
	r.Threshold = entry.Threshold
	r.CreatedAt = entry.CreatedAt
	return r
}

func share(n, total int) float64 {
	return decision.Round(100*float64(n)/float64(total), 1)
}

func summarize(amounts []float64) AmountSummary {
	s := AmountSummary{Count: len(amounts), Total: decimal.Zero, Mean: decimal.Zero}
	if len(amounts) == 0 {
		return s
	}

	sorted := append([]float64(nil), amounts...)
	sort.Float64s(sorted)

	total := decimal.Zero
	for _, a := range sorted {
		total = total.Add(decimal.NewFromFloat(a))
	}

	s.Total = total
	s.Mean = total.DivRound(decimal.NewFromInt(int64(len(sorted))), 2)
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		s.Median = sorted[mid]
	} else {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return s
}

// WriteText renders the report as plain text.
func (r *Report) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("Fraud Detection Report\n\n")
	if r.UserEmail != "" {
		ew.printf("User: %s\n", r.UserEmail)
	}
	if !r.CreatedAt.IsZero() {
		ew.printf("Date: %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if r.BatchID != "" {
		ew.printf("Batch: %s\n", r.BatchID)
	}
	ew.printf("Threshold: %g\n", r.Threshold)
	ew.printf("Total Rows: %d\n", r.TotalRows)
	ew.printf("Frauds Detected: %d (%.1f%%)\n", r.FraudCount, r.FraudShare)
	ew.printf("Legit: %d (%.1f%%)\n\n", r.LegitCount, r.LegitShare)

	ew.printf("Amounts\n")
	for _, c := range []struct {
		label string
		s     AmountSummary
	}{{domain.Label(domain.PredictionLegit), r.Amounts.Legit}, {domain.Label(domain.PredictionFraud), r.Amounts.Fraud}} {
		ew.printf("  %-6s count=%d total=%s mean=%s min=%g median=%g max=%g\n",
			c.label, c.s.Count, c.s.Total.StringFixed(2), c.s.Mean.StringFixed(2), c.s.Min, c.s.Median, c.s.Max)
	}

	ew.printf("\nHourly pattern (legit/fraud)\n")
	for _, b := range r.Hourly {
		if b.Legit+b.Fraud == 0 {
			continue
		}
		ew.printf("  %02d:00  %d/%d\n", b.Hour, b.Legit, b.Fraud)
	}

	ew.printf("\nFirst %d rows\n", len(r.Preview))
	for _, p := range r.Preview {
		ew.printf("  Amount: %g, Fraud_Prob: %g, Prediction: %d\n", p.Amount, p.FraudProbability, p.Prediction)
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
