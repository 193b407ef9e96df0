package probe

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"netharness/internal/addrutil"
	"netharness/internal/execx"
	"netharness/internal/model"
	"netharness/internal/stunutil"
)

// wgetScript times a quiet download with the shell time keyword so the
// duration lands in the captured output as "real MmS.sss".
const wgetScript = `time wget -q -O /dev/null "$1"`

const stunTimeout = 3 * time.Second

// Options tune how probes invoke their tools.
type Options struct {
	PingCount  int
	Iperf3JSON bool
	// Transport replaces the net/http transport of the native HTTP probe.
	Transport http.RoundTripper
}

// Prober runs the external measurement tools and parses their output.
// Every method returns a normalized value or model.NotAvailable; probe
// failures are logged, never returned.
type Prober struct {
	r    execx.Runner
	opts Options
}

func NewProber(r execx.Runner, opts Options) *Prober {
	if r == nil {
		r = execx.NewOSRunner()
	}
	if opts.PingCount <= 0 {
		opts.PingCount = 4
	}
	return &Prober{r: r, opts: opts}
}

// Ping returns the mean round-trip time in ms to dest.
func (p *Prober) Ping(ctx context.Context, dest string) string {
	host := addrutil.PingHost(dest)
	if host == "" {
		log.Warn().Str("probe", "ping").Str("destination", dest).Msg("no host in destination")
		return model.NotAvailable
	}
	if !p.available("ping") {
		return ParsePing(nativePing(ctx, host, p.opts.PingCount))
	}
	out, err := p.r.Output(ctx, "ping", "-c", strconv.Itoa(p.opts.PingCount), host)
	if err != nil {
		p.failed("ping", dest, err)
		return model.NotAvailable
	}
	return ParsePing(out)
}

// HTTP returns the total request time in seconds, through proxy when set.
func (p *Prober) HTTP(ctx context.Context, dest, proxy string) string {
	target := addrutil.HTTPURL(dest)
	if target == "" {
		return model.NotAvailable
	}
	if !p.available("curl") {
		out, err := nativeHTTP(ctx, target, proxy, p.opts.Transport)
		if err != nil {
			p.failed("http", dest, err)
			return model.NotAvailable
		}
		return ParseHTTP(out)
	}
	args := []string{"-s", "-o", "/dev/null", "-w", "%{time_total}"}
	if proxy != "" {
		args = append(args, "-x", proxy)
	}
	args = append(args, target)
	out, err := p.r.Output(ctx, "curl", args...)
	if err != nil {
		p.failed("http", dest, err)
		return model.NotAvailable
	}
	return ParseHTTP(out)
}

// Wget returns the download time of url in seconds, through proxy when set.
func (p *Prober) Wget(ctx context.Context, url, proxy string) string {
	if url == "" {
		return model.NotAvailable
	}
	var env []string
	if proxy != "" {
		env = []string{"http_proxy=" + proxy, "https_proxy=" + proxy}
	}
	out, err := p.r.OutputEnv(ctx, env, "bash", "-c", wgetScript, "wget", url)
	if err != nil {
		p.failed("wget", url, err)
		return model.NotAvailable
	}
	return ParseWgetTime(out)
}

// Iperf3 returns the receiver throughput against an iperf3 server.
func (p *Prober) Iperf3(ctx context.Context, server string) string {
	host, port := addrutil.Iperf3Target(server)
	if host == "" {
		return model.NotAvailable
	}
	args := []string{"-c", host}
	if port > 0 {
		args = append(args, "-p", strconv.Itoa(port))
	}
	kind := KindIperf3
	if p.opts.Iperf3JSON {
		args = append(args, "-J")
		kind = KindIperf3JSON
	}
	out, err := p.r.Output(ctx, "iperf3", args...)
	if err != nil {
		p.failed("iperf3", server, err)
		return model.NotAvailable
	}
	return Parse(kind, out)
}

func (p *Prober) available(tool string) bool {
	if _, err := p.r.LookPath(tool); err != nil {
		log.Debug().Str("tool", tool).Msg("tool not on PATH, using native probe")
		return false
	}
	return true
}

func (p *Prober) failed(probe, dest string, err error) {
	log.Warn().Err(err).Str("probe", probe).Str("destination", dest).Msg("probe failed")
}

// StunRTT returns the STUN binding round trip in ms against servers.
func (p *Prober) StunRTT(ctx context.Context, servers []string) string {
	res, err := stunutil.Probe(ctx, servers, stunTimeout)
	if err != nil {
		p.failed("stun", strings.Join(servers, ","), err)
		return model.NotAvailable
	}
	log.Info().Str("public_addr", res.PublicAddr).Str("nat_type", res.NATType).Msg("stun binding")
	return strconv.FormatFloat(durationMs(res.RTT), 'f', 3, 64)
}
