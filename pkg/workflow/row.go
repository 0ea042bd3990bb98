package workflow

import (
	"fmt"
	"strings"
	"time"
)

// LossFile is the name of the sweep result table.
const LossFile = "loss.tsv"

// Row is the evaluation of one sweep point.
type Row struct {
	Point       int
	Values      []float64 // variable values in sweep order
	RealLoss    float64
	NotRealLoss float64
	RateLoss    float64
	Replicates  int
	Elapsed     time.Duration
	Restored    bool // loaded from a checkpoint
}

// lossHeader renders the header line of loss.tsv.
func lossHeader(ids []string) string {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('\t')
	}
	b.WriteString("Real loss\tNot real loss\tRate loss\n")
	return b.String()
}

// TSV renders the row as a loss.tsv line.
func (r Row) TSV() string {
	var b strings.Builder
	for _, v := range r.Values {
		b.WriteString(FormatValue(v))
		b.WriteByte('\t')
	}
	fmt.Fprintf(&b, "%.8f\t%.8f\t%.8f\n", r.RealLoss, r.NotRealLoss, r.RateLoss)
	return b.String()
}

// LossTable renders rows as a complete loss.tsv.
func LossTable(ids []string, rows []Row) string {
	var b strings.Builder
	b.WriteString(lossHeader(ids))
	for _, r := range rows {
		b.WriteString(r.TSV())
	}
	return b.String()
}
