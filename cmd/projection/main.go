// Command projection prints a compound interest schedule for a balance and an
// annual rate, optionally rendering the balances as a PNG bar chart.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/riteshkumar/savings-ledger/internal/models"
	"github.com/riteshkumar/savings-ledger/internal/money"
	"github.com/riteshkumar/savings-ledger/internal/projection"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "projection: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, now time.Time) error {
	fs := flag.NewFlagSet("projection", flag.ContinueOnError)
	fs.SetOutput(out)
	balanceFlag := fs.String("balance", "", "Current balance, e.g. 1000.00")
	rateFlag := fs.String("rate", "0", "Nominal annual interest rate in percent, e.g. 4.5")
	months := fs.Int("months", 12, "Number of months to project")
	from := fs.String("from", "", "Month to project from (YYYY-MM), defaults to the current month")
	chartPath := fs.String("chart", "", "Write a PNG chart of the projected balances to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *balanceFlag == "" {
		return errors.New("-balance is required")
	}
	balance, err := money.Parse(*balanceFlag)
	if err != nil {
		return fmt.Errorf("invalid -balance: %w", err)
	}
	rate, err := money.ParseRate(*rateFlag)
	if err != nil {
		return fmt.Errorf("invalid -rate: %w", err)
	}
	if rate.IsNegative() {
		return errors.New("-rate must not be negative")
	}
	if *from != "" {
		if now, err = time.Parse("2006-01", *from); err != nil {
			return fmt.Errorf("invalid -from: %w", err)
		}
	}

	entries, err := projection.Project(balance, &rate, *months, now)
	if err != nil {
		return err
	}

	writeTable(out, entries)

	if *chartPath != "" && len(entries) > 0 {
		if err := writeChart(*chartPath, balance, rate, entries); err != nil {
			return err
		}
		fmt.Fprintf(out, "Chart saved to: %s\n", *chartPath)
	}
	return nil
}

func writeTable(w io.Writer, entries []models.ProjectionEntry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Month", "Interest", "Balance"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	total := money.Zero
	for _, e := range entries {
		table.Append([]string{e.Month, e.Interest.String(), e.Balance.String()})
		total = total.Add(e.Interest)
	}
	table.SetFooter([]string{"Total", total.String(), ""})
	table.Render()
}

const (
	barWidth   = 40
	barSpacing = 20
)

func writeChart(path string, balance money.Amount, rate money.Rate, entries []models.ProjectionEntry) error {
	bars := make([]chart.Value, 0, len(entries))
	for _, e := range entries {
		value, _ := e.Balance.Decimal().Float64()
		bars = append(bars, chart.Value{
			Label: e.Month,
			Value: value,
		})
	}

	barChart := chart.BarChart{
		Title: fmt.Sprintf("%s at %s%% over %d months", balance, rate, len(entries)),
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:      200 + len(bars)*(barWidth+barSpacing),
		Height:     400,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Bars:       bars,
	}
	barChart.YAxis.ValueFormatter = func(v interface{}) string {
		if vf, isFloat := v.(float64); isFloat {
			return fmt.Sprintf("%.2f", vf)
		}
		return ""
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer f.Close()

	if err := barChart.Render(chart.PNG, f); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
