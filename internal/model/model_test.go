package model

import "testing"

func TestSlotFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		category Category
		metric   string
		want     Slot
	}{
		{CategoryLatency, MetricPing, SlotPingLatency},
		{CategoryLatency, MetricHTTPDirect, SlotHTTPDirectLatency},
		{CategoryLatency, MetricHTTPProxy, SlotHTTPProxyLatency},
		{CategoryWget, MetricDirectTime, SlotWgetDirectTime},
		{CategoryWget, MetricProxyTime, SlotWgetProxyTime},
		{CategoryIperf3, MetricDirectSpeed, SlotIperf3Speed},
	}
	for _, tc := range cases {
		got, ok := SlotFor(tc.category, tc.metric)
		if !ok || got != tc.want {
			t.Fatalf("SlotFor(%s, %s)=%v,%v want %v", tc.category, tc.metric, got, ok, tc.want)
		}
	}

	for _, bad := range [][2]string{{"latency", "stun_rtt"}, {"wget", "ping"}, {"dns", "lookup"}} {
		if _, ok := SlotFor(Category(bad[0]), bad[1]); ok {
			t.Fatalf("SlotFor(%s, %s) should not resolve", bad[0], bad[1])
		}
	}
}

func TestSummaryRow_SetGet(t *testing.T) {
	t.Parallel()

	row := NewSummaryRow("2024-01-01 10:00:00")
	for _, s := range Slots {
		if row.Get(s) != NotAvailable {
			t.Fatalf("%s=%q", s, row.Get(s))
		}
	}
	row.Set(SlotIperf3Speed, "94.2 Mbits/sec")
	if row.Iperf3Speed != "94.2 Mbits/sec" {
		t.Fatalf("iperf3_speed=%q", row.Iperf3Speed)
	}
	if SlotWgetProxyTime.String() != "wget_proxy_time" || Slot(42).String() != "unknown" {
		t.Fatalf("slot names")
	}
}

func TestCategory_Valid(t *testing.T) {
	t.Parallel()

	if !CategoryWget.Valid() || Category("all").Valid() {
		t.Fatalf("category validation")
	}
}
