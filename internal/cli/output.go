package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"eve-arbitrage/internal/engine"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

// isk formats an ISK amount with thousands separators and two decimals.
func isk(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func printOpportunities(out io.Writer, opps []engine.Opportunity) {
	if len(opps) == 0 {
		fmt.Fprintln(out, "No opportunities.")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "#\tITEM\tROUTE\tBUY\tSELL\tPROFIT/U\tMARGIN\tVOLUME\tTOTAL")
	for i, o := range opps {
		name := o.TypeName
		if o.Stale {
			name += " *"
		}
		fmt.Fprintf(w, "%d\t%s\t%s -> %s\t%s\t%s\t%s\t%.1f%%\t%d\t%s\n",
			i+1, name, o.SourceRegion, o.DestRegion,
			isk(o.BuyPrice), isk(o.SellPrice), isk(o.ProfitPerUnit), o.MarginPct, o.VolumeAvailable, isk(o.TotalProfit))
	}
	w.Flush()
}

func printStatus(out io.Writer, st engine.ScanState) {
	w := newTable(out)
	state := "idle"
	if st.Running {
		state = "running"
	}
	fmt.Fprintf(w, "State:\t%s\n", state)
	if st.ScanID != "" {
		fmt.Fprintf(w, "Scan ID:\t%s\n", st.ScanID)
	}
	if st.StartedAt != nil {
		fmt.Fprintf(w, "Started:\t%s\n", st.StartedAt.Format(time.RFC3339))
	}
	if st.LastScanAt != nil {
		fmt.Fprintf(w, "Last scan:\t%s\n", st.LastScanAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:\t%s\n", st.LastDuration.Round(time.Millisecond))
	} else {
		fmt.Fprintf(w, "Last scan:\tnever\n")
	}
	fmt.Fprintf(w, "Opportunities:\t%d\n", st.OpportunityCount)
	fmt.Fprintf(w, "Routes failed:\t%d\n", st.RoutesFailed)
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error:\t%s\n", st.LastError)
	}
	w.Flush()
}

func printReport(out io.Writer, r *engine.ScanReport) {
	w := newTable(out)
	fmt.Fprintln(w, "ROUTE\tOPPORTUNITIES\tNOTE")
	for _, rr := range r.Routes {
		note := ""
		switch {
		case rr.Err != "":
			note = "skipped: " + rr.Err
		case rr.Stale:
			note = "stale prices"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", rr.Route, rr.Opportunities, note)
	}
	w.Flush()
	fmt.Fprintf(out, "\nScan %s finished in %s with %d opportunities.\n",
		r.ScanID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.Opportunities)
}

func printPrices(out io.Writer, p *engine.PriceLookup) {
	fmt.Fprintf(out, "%s (type %d, %.2f m3)\n\n", p.TypeName, p.TypeID, p.UnitVolume)
	w := newTable(out)
	fmt.Fprintln(w, "REGION\tLOWEST SELL\tSELL VOL\tHIGHEST BUY\tBUY VOL\tAGE")
	for _, rp := range p.Regions {
		if rp.Error != "" {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\terror: %s\n", rp.Region, rp.Error)
			continue
		}
		age := "-"
		if rp.FetchedAt != nil {
			age = time.Since(*rp.FetchedAt).Round(time.Second).String()
			if rp.Stale {
				age += " (stale)"
			}
		}
		if !rp.Listed {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%s\n", rp.Region, age)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n",
			rp.Region, isk(rp.LowestSell), rp.SellVolume, isk(rp.HighestBuy), rp.BuyVolume, age)
	}
	w.Flush()
	if buyIn, sellIn, ok := p.BestSpread(); ok {
		fmt.Fprintf(out, "\nBest spread: buy in %s at %s, sell to %s at %s\n",
			buyIn.Region, isk(buyIn.LowestSell), sellIn.Region, isk(sellIn.HighestBuy))
	}
}

func printHistory(out io.Writer, recs []engine.ScanRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "No scans recorded.")
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "STARTED\tID\tSTATUS\tDURATION\tOPPS\tFAILED\tTOP PROFIT\tERROR")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Format(time.RFC3339), shortID(r.ID), r.Status,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.OpportunityCount, r.RoutesFailed, isk(r.TopProfit), r.Error)
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
