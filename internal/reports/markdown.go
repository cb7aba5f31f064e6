package reports

import (
	"fmt"
	"strings"

	"watchbook/internal/currency"
)

var trendLabels = map[string]string{
	TrendUp:   "↑ растеж",
	TrendDown: "↓ спад",
	TrendFlat: "→ без промяна",
}

// Markdown renders the monthly and all-time stats as a markdown document.
func Markdown(ms MonthlyStats, at AllTimeStats) string {
	eur := func(x float64) string { return currency.FormatAmount(x, currency.EUR, false) }

	var b strings.Builder
	fmt.Fprintf(&b, "# Статистика за %s\n\n", ms.MonthKey.Name())
	b.WriteString("| Показател | Стойност |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Поръчки | %d |\n", ms.OrderCount)
	fmt.Fprintf(&b, "| Приходи | %s |\n", eur(ms.Revenue))
	fmt.Fprintf(&b, "| Себестойност | %s |\n", eur(ms.Cost))
	fmt.Fprintf(&b, "| Разходи | %s |\n", eur(ms.Expenses))
	fmt.Fprintf(&b, "| Печалба | %s |\n", eur(ms.Profit))

	b.WriteString("\n## За целия период\n\n")
	b.WriteString("| Показател | Стойност |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Поръчки | %d |\n", at.TotalOrders)
	fmt.Fprintf(&b, "| Приходи | %s |\n", eur(at.TotalRevenue))
	fmt.Fprintf(&b, "| Нетна печалба | %s |\n", eur(at.NetProfit))
	fmt.Fprintf(&b, "| Средна печалба | %s |\n", eur(at.AvgProfit))
	fmt.Fprintf(&b, "| Тенденция (%s спрямо %s) | %s %.1f%% |\n",
		at.LastMonth, at.PrevMonth, trendLabels[at.Trend], at.Velocity)
	return b.String()
}
