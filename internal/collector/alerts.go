package collector

import (
	"fmt"
	"strings"
	"time"

	"routerwatch/internal/model"
	"routerwatch/internal/notify"
)

const alertTimeLayout = "2006-01-02 15:04:05"

// Names and error text are user data: they stay outside Markdown entities and are
// escaped, so a stray '_' in an interface name cannot get the message rejected.
var md = notify.EscapeMarkdown

type interfaceChange struct {
	iface  string
	status model.LinkStatus
}

func cpuAlert(dev model.DeviceConfig, cpu float64) string {
	return fmt.Sprintf("🔥 CPU usage high on %s: *%.0f%%* (threshold: %.0f%%)", md(dev.Name), cpu, dev.CPUAlertThreshold)
}

func cpuNormalAlert(dev model.DeviceConfig, cpu float64) string {
	return fmt.Sprintf("✅ CPU usage back to normal on %s: *%.0f%%*", md(dev.Name), cpu)
}

func ramAlert(dev model.DeviceConfig, pct float64) string {
	return fmt.Sprintf("⚠️ RAM usage high on %s: *%.1f%%* (threshold: %.1f%%)", md(dev.Name), pct, dev.RAMAlertThreshold)
}

func ramNormalAlert(dev model.DeviceConfig, pct float64) string {
	return fmt.Sprintf("✅ RAM usage back to normal on %s: *%.1f%%*", md(dev.Name), pct)
}

// interfaceChangeAlert folds every confirmed transition of one device in one cycle
// into a single message.
func interfaceChangeAlert(device string, at time.Time, changes []interfaceChange) string {
	var b strings.Builder
	b.WriteString("🔁 *Interface status change*\n_")
	b.WriteString(at.Format(alertTimeLayout))
	b.WriteString("_\n\n")
	for i, ch := range changes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		mark := "✅"
		if ch.status == model.LinkDown {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s - %s\nStatus: *%s* %s", md(device), md(ch.iface), ch.status, mark)
	}
	return b.String()
}

func unreachableAlert(device string, err error) string {
	return fmt.Sprintf("📡 %s is unreachable: %s", md(device), md(errString(err)))
}

func recoveredAlert(device string) string {
	return fmt.Sprintf("📡 %s is reachable again", md(device))
}

func persistenceAlert(what string, err error) string {
	return fmt.Sprintf("💾 *Persistence failure* (%s): %s", md(what), md(errString(err)))
}

func loopErrorAlert(err error) string {
	return fmt.Sprintf("🚨 *Collector error*: %s", md(errString(err)))
}
