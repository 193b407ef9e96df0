package stunutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// Result is the outcome of binding requests against a set of STUN servers.
type Result struct {
	// RTT is the binding round trip of the first server that answered.
	RTT        time.Duration
	PublicAddr string
	NATType    string
}

// Probe sends a binding request to each server and reports the first
// answer's round trip along with the mapped address.
func Probe(ctx context.Context, servers []string, timeout time.Duration) (Result, error) {
	if len(servers) == 0 {
		return Result{NATType: NATTypeUnknown}, fmt.Errorf("no STUN servers provided")
	}

	addrs := make([]string, 0, len(servers))
	var first time.Duration
	var lastErr error
	for _, server := range servers {
		addr, rtt, err := probeServer(ctx, server, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		if len(addrs) == 0 {
			first = rtt
		}
		addrs = append(addrs, addr)
	}

	if len(addrs) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("STUN probe failed")
		}
		return Result{NATType: NATTypeUnknown}, lastErr
	}

	return Result{RTT: first, PublicAddr: addrs[0], NATType: Classify(addrs)}, nil
}

// Classify infers NAT type by comparing mapped addresses from multiple servers.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	first := addrs[0]
	for _, addr := range addrs[1:] {
		if addr != first {
			return NATTypeSymmetric
		}
	}
	return NATTypeConeOrRestricted
}

func probeServer(ctx context.Context, server string, timeout time.Duration) (string, time.Duration, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return "", 0, fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", 0, err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", 0, err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 1)

	start := time.Now()
	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			fail <- err
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case addr := <-result:
		return addr.String(), time.Since(start), nil
	case err := <-fail:
		return "", 0, err
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
}
