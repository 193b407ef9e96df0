package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	probing "github.com/prometheus-community/pro-bing"
	"github.com/rs/zerolog/log"
)

const nativeTimeout = 10 * time.Second

// nativePing pings host with pro-bing and renders the statistics as a ping
// summary line, so ParsePing handles both sources. It returns "" on failure.
func nativePing(ctx context.Context, host string, count int) string {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		log.Warn().Err(err).Str("probe", "ping").Str("host", host).Msg("native ping setup failed")
		return ""
	}

	pinger.Count = count
	pinger.Timeout = time.Duration(count)*time.Second + 2*time.Second
	pinger.SetPrivileged(false) // Use unprivileged mode (UDP)

	if err := pinger.RunWithContext(ctx); err != nil {
		log.Warn().Err(err).Str("probe", "ping").Str("host", host).Msg("native ping failed")
		return ""
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return ""
	}
	return formatPingSummary(stats.MinRtt, stats.AvgRtt, stats.MaxRtt, stats.StdDevRtt)
}

func formatPingSummary(minRTT, avgRTT, maxRTT, mdev time.Duration) string {
	return fmt.Sprintf("rtt min/avg/max/mdev = %.3f/%.3f/%.3f/%.3f ms",
		durationMs(minRTT), durationMs(avgRTT), durationMs(maxRTT), durationMs(mdev))
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// nativeHTTP times a GET of target including the body, printing seconds the
// way curl's %{time_total} does.
func nativeHTTP(ctx context.Context, target, proxy string, rt http.RoundTripper) (string, error) {
	if rt == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if proxy != "" {
			proxyURL, err := url.Parse(proxy)
			if err != nil {
				return "", errors.Wrapf(err, "invalid proxy %q", proxy)
			}
			tr.Proxy = http.ProxyURL(proxyURL)
		}
		rt = tr
	}
	client := &http.Client{Transport: rt, Timeout: nativeTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", errors.Wrap(err, "read body")
	}
	elapsed := time.Since(start)

	return fmt.Sprintf("%.6f", elapsed.Seconds()), nil
}
