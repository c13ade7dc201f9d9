package report

import (
	"fmt"
	"sort"
	"strings"

	"routerwatch/internal/model"
	"routerwatch/internal/notify"
)

type InterfaceTotals struct {
	Name            string           `json:"name"`
	TotalInBytes    uint64           `json:"total_in_bytes"`
	TotalOutBytes   uint64           `json:"total_out_bytes"`
	UpEvents        uint64           `json:"up_events"`
	DownEvents      uint64           `json:"down_events"`
	LastKnownStatus model.LinkStatus `json:"last_known_status"`
}

// Monthly is the aggregate of one device's daily summaries over one month.
type Monthly struct {
	Device     string            `json:"device"`
	Month      string            `json:"month"`
	Days       int               `json:"days"`
	AvgCPU     *float64          `json:"avg_cpu"`
	AvgRAM     *float64          `json:"avg_ram"`
	Interfaces []InterfaceTotals `json:"interfaces"`
}

// Aggregate averages the daily averages that exist, sums interface totals and keeps the
// final status of the latest day.
func Aggregate(device, month string, records []model.DailySummaryRecord) Monthly {
	recs := make([]model.DailySummaryRecord, len(records))
	copy(recs, records)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Date < recs[j].Date })

	m := Monthly{Device: device, Month: month, Days: len(recs)}
	var cpuSum, ramSum float64
	var cpuN, ramN int
	totals := map[string]*InterfaceTotals{}
	for _, rec := range recs {
		if rec.AvgCPU != nil {
			cpuSum += *rec.AvgCPU
			cpuN++
		}
		if rec.AvgRAM != nil {
			ramSum += *rec.AvgRAM
			ramN++
		}
		for name, s := range rec.Interfaces {
			t := totals[name]
			if t == nil {
				t = &InterfaceTotals{Name: name, LastKnownStatus: model.LinkUnknown}
				totals[name] = t
			}
			t.TotalInBytes += s.TotalInBytes
			t.TotalOutBytes += s.TotalOutBytes
			t.UpEvents += s.UpEvents
			t.DownEvents += s.DownEvents
			if s.FinalStatus != "" {
				t.LastKnownStatus = s.FinalStatus
			}
		}
	}
	if cpuN > 0 {
		v := cpuSum / float64(cpuN)
		m.AvgCPU = &v
	}
	if ramN > 0 {
		v := ramSum / float64(ramN)
		m.AvgRAM = &v
	}

	m.Interfaces = make([]InterfaceTotals, 0, len(totals))
	for _, t := range totals {
		m.Interfaces = append(m.Interfaces, *t)
	}
	sort.Slice(m.Interfaces, func(i, j int) bool { return m.Interfaces[i].Name < m.Interfaces[j].Name })
	return m
}

// Text renders the Markdown message sent to the notification channel.
func (m Monthly) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Monthly report:* %s (%s)\n\n", notify.EscapeMarkdown(m.Device), m.Month)
	if m.Days == 0 {
		b.WriteString("No daily summaries for this month.\n")
		return b.String()
	}
	if m.AvgCPU != nil {
		fmt.Fprintf(&b, "🧠 *Average CPU*: %.1f%%\n", *m.AvgCPU)
	}
	if m.AvgRAM != nil {
		fmt.Fprintf(&b, "💾 *Average RAM*: %.1f%%\n", *m.AvgRAM)
	}
	b.WriteString("\n🌐 *Interfaces*:\n")
	for _, t := range m.Interfaces {
		fmt.Fprintf(&b, "🔌 %s\n", notify.EscapeMarkdown(t.Name))
		fmt.Fprintf(&b, "  ✅ UP events: %d\n", t.UpEvents)
		fmt.Fprintf(&b, "  ❌ DOWN events: %d\n", t.DownEvents)
		fmt.Fprintf(&b, "  📥 Total in: %s\n", FormatGB(t.TotalInBytes))
		fmt.Fprintf(&b, "  📤 Total out: %s\n", FormatGB(t.TotalOutBytes))
		fmt.Fprintf(&b, "  Status at month end: %s\n\n", t.LastKnownStatus)
	}
	return b.String()
}

// FormatGB renders bytes as binary gigabytes with two decimals.
func FormatGB(bytes uint64) string {
	return fmt.Sprintf("%.2f GB", float64(bytes)/(1<<30))
}
