package doctor

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Tool is an external program a test depends on.
type Tool struct {
	Name     string
	UsedBy   string
	Fallback string
}

// Tools lists every external program the harness can invoke.
var Tools = []Tool{
	{Name: "ping", UsedBy: "latency", Fallback: "native ICMP"},
	{Name: "curl", UsedBy: "latency", Fallback: "net/http"},
	{Name: "bash", UsedBy: "wget"},
	{Name: "wget", UsedBy: "wget"},
	{Name: "iperf3", UsedBy: "iperf3"},
}

// LookPather resolves program names on PATH.
type LookPather interface {
	LookPath(name string) (string, error)
}

// ToolStatus is the availability of one tool.
type ToolStatus struct {
	Tool
	Path  string
	Found bool
}

// HostInfo describes the machine measurements are taken from.
type HostInfo struct {
	Hostname      string
	OS            string
	Platform      string
	KernelVersion string
	UptimeSec     uint64
	CPUs          int
	CPUPercent    float64
	MemUsedPct    float64
}

// Report is the outcome of a doctor check.
type Report struct {
	Tools []ToolStatus
	Host  HostInfo
}

// Missing returns tools that are absent and have no native fallback.
func (r Report) Missing() []ToolStatus {
	var out []ToolStatus
	for _, t := range r.Tools {
		if !t.Found && t.Fallback == "" {
			out = append(out, t)
		}
	}
	return out
}

// Check looks up every tool and collects host information. Host lookups
// that fail leave their fields empty.
func Check(ctx context.Context, lp LookPather) Report {
	var rep Report
	for _, t := range Tools {
		st := ToolStatus{Tool: t}
		if path, err := lp.LookPath(t.Name); err == nil {
			st.Path = path
			st.Found = true
		}
		rep.Tools = append(rep.Tools, st)
	}
	rep.Host = hostInfo(ctx)
	return rep
}

func hostInfo(ctx context.Context) HostInfo {
	info := HostInfo{OS: runtime.GOOS, CPUs: runtime.NumCPU()}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hi.Hostname
		info.OS = hi.OS
		info.Platform = hi.Platform + " " + hi.PlatformVersion
		info.KernelVersion = hi.KernelVersion
		info.UptimeSec = hi.Uptime
	} else {
		log.Debug().Err(err).Msg("host info unavailable")
	}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		info.CPUPercent = pct[0]
	} else if err != nil {
		log.Debug().Err(err).Msg("cpu usage unavailable")
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemUsedPct = vm.UsedPercent
	} else {
		log.Debug().Err(err).Msg("memory usage unavailable")
	}
	return info
}

// Write prints the report as aligned text.
func (r Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tTEST\tSTATUS\tPATH")
	for _, t := range r.Tools {
		status := "ok"
		if !t.Found {
			status = "missing"
			if t.Fallback != "" {
				status = "missing (using " + t.Fallback + ")"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.UsedBy, status, t.Path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	h := r.Host
	_, err := fmt.Fprintf(w, "\nhost=%s os=%s platform=%s kernel=%s uptime=%ds cpus=%d cpu=%.1f%% mem=%.1f%%\n",
		h.Hostname, h.OS, h.Platform, h.KernelVersion, h.UptimeSec, h.CPUs, h.CPUPercent, h.MemUsedPct)
	return err
}
