package batch

import (
	"errors"
	"testing"
	"time"

	"github.com/sensiblebit/certbatch"
)

func TestClassify(t *testing.T) {
	// WHY: the warning window is inclusive at both ends; off-by-one errors
	// here silently move certificates between report buckets.
	t.Parallel()

	tests := []struct {
		days        int
		warningDays int
		want        ReportStatus
	}{
		{days: -1, warningDays: 30, want: ReportExpired},
		{days: -400, warningDays: 30, want: ReportExpired},
		{days: 0, warningDays: 30, want: ReportExpiringSoon},
		{days: 30, warningDays: 30, want: ReportExpiringSoon},
		{days: 31, warningDays: 30, want: ReportValid},
		{days: 0, warningDays: 0, want: ReportExpiringSoon},
		{days: 1, warningDays: 0, want: ReportValid},
	}
	for _, tt := range tests {
		if got := Classify(tt.days, tt.warningDays); got != tt.want {
			t.Errorf("Classify(%d, %d) = %s, want %s", tt.days, tt.warningDays, got, tt.want)
		}
	}
}

func TestDaysUntil(t *testing.T) {
	// WHY: partial days round down, so a certificate expiring in 23 hours has
	// zero days left and one that expired an hour ago has -1.
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		offset time.Duration
		want   int
	}{
		{offset: 23 * time.Hour, want: 0},
		{offset: 24 * time.Hour, want: 1},
		{offset: 47 * time.Hour, want: 1},
		{offset: -time.Hour, want: -1},
		{offset: -25 * time.Hour, want: -2},
	}
	for _, tt := range tests {
		if got := DaysUntil(now.Add(tt.offset), now); got != tt.want {
			t.Errorf("DaysUntil(now%+v) = %d, want %d", tt.offset, got, tt.want)
		}
	}
}

func TestExpirationAggregator_DiscoveryOrder(t *testing.T) {
	// WHY: items complete in any order under concurrency but the report must
	// list them in discovery order with counts summing to the total.
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg := newExpirationAggregator(ExpirationReportOptions{InputDir: "/certs", WarningDays: WarningWindow(10)}, 4)

	mk := func(notAfter time.Time) []checkedCert {
		return []checkedCert{{Info: &certbatch.CertificateInfo{Subject: "CN=x", NotAfter: notAfter}}}
	}
	agg.add(2, "/certs/c.pem", mk(now.Add(-48*time.Hour)), now)
	agg.add(0, "/certs/a.pem", mk(now.Add(100*24*time.Hour)), now)
	agg.add(3, "/certs/d.pem", mk(now.Add(5*24*time.Hour)), now)
	// index 1 failed to parse and is absent

	rep := agg.report("job", now)
	if rep.TotalCertificates != 3 {
		t.Fatalf("TotalCertificates = %d, want 3", rep.TotalCertificates)
	}
	if rep.ValidCount != 1 || rep.ExpiringSoonCount != 1 || rep.ExpiredCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", rep.ValidCount, rep.ExpiringSoonCount, rep.ExpiredCount)
	}
	wantOrder := []string{"a.pem", "c.pem", "d.pem"}
	for i, it := range rep.Items {
		if it.FileName != wantOrder[i] {
			t.Errorf("Items[%d] = %s, want %s", i, it.FileName, wantOrder[i])
		}
	}
	if rep.Items[1].DaysUntilExpiration != -2 {
		t.Errorf("expired item days = %d, want -2", rep.Items[1].DaysUntilExpiration)
	}
}

func TestExpirationAggregator_EveryCertificateInFile(t *testing.T) {
	// WHY: a bundle or truststore holds many certificates; each one must be
	// classified, in file order, after the entries of earlier files.
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg := newExpirationAggregator(ExpirationReportOptions{InputDir: "/certs", WarningDays: WarningWindow(30)}, 2)

	cert := func(cn string, notAfter time.Time) checkedCert {
		return checkedCert{Info: &certbatch.CertificateInfo{Subject: "CN=" + cn, NotAfter: notAfter}}
	}
	agg.add(1, "/certs/store.jks", []checkedCert{
		cert("root-a", now.Add(-24*time.Hour)),
		cert("root-b", now.Add(400*24*time.Hour)),
	}, now)
	agg.add(0, "/certs/chain.pem", []checkedCert{
		cert("leaf", now.Add(200*24*time.Hour)),
		cert("intermediate", now.Add(10*24*time.Hour)),
	}, now)

	rep := agg.report("job", now)
	if rep.TotalCertificates != 4 {
		t.Fatalf("TotalCertificates = %d, want 4", rep.TotalCertificates)
	}
	if rep.ValidCount != 2 || rep.ExpiringSoonCount != 1 || rep.ExpiredCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", rep.ValidCount, rep.ExpiringSoonCount, rep.ExpiredCount)
	}
	wantOrder := []string{"CN=leaf", "CN=intermediate", "CN=root-a", "CN=root-b"}
	for i, it := range rep.Items {
		if it.Subject != wantOrder[i] {
			t.Errorf("Items[%d] = %s, want %s", i, it.Subject, wantOrder[i])
		}
	}
}

func TestExpirationAggregator_WarningWindow(t *testing.T) {
	// WHY: an unset window means the 30 day default, while an explicit zero
	// must mean "expires today" and not fall back to the default.
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	certs := []checkedCert{
		{Info: &certbatch.CertificateInfo{Subject: "CN=today", NotAfter: now.Add(12 * time.Hour)}},
		{Info: &certbatch.CertificateInfo{Subject: "CN=in-two-days", NotAfter: now.Add(50 * time.Hour)}},
	}

	tests := []struct {
		name     string
		window   *int
		wantDays int
		want     []ReportStatus
	}{
		{name: "default", window: nil, wantDays: DefaultWarningDays, want: []ReportStatus{ReportExpiringSoon, ReportExpiringSoon}},
		{name: "zero", window: WarningWindow(0), wantDays: 0, want: []ReportStatus{ReportExpiringSoon, ReportValid}},
		{name: "one", window: WarningWindow(1), wantDays: 1, want: []ReportStatus{ReportExpiringSoon, ReportValid}},
		{name: "two", window: WarningWindow(2), wantDays: 2, want: []ReportStatus{ReportExpiringSoon, ReportExpiringSoon}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			agg := newExpirationAggregator(ExpirationReportOptions{InputDir: "/certs", WarningDays: tt.window}, 1)
			agg.add(0, "/certs/pair.pem", certs, now)
			rep := agg.report("job", now)
			if rep.WarningDays != tt.wantDays {
				t.Errorf("WarningDays = %d, want %d", rep.WarningDays, tt.wantDays)
			}
			for i, it := range rep.Items {
				if it.Status != tt.want[i] {
					t.Errorf("%s status = %s, want %s", it.Subject, it.Status, tt.want[i])
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	// WHY: callers running several jobs validate every entry up front, so
	// Validate must reject what Submit rejects without needing the inputs.
	t.Parallel()

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "nil", opts: nil, wantErr: true},
		{name: "convert_ok", opts: ConvertOptions{InputDir: "/in", OutputDir: "/out", OutputFormat: certbatch.FormatDER}},
		{name: "convert_no_output", opts: ConvertOptions{InputDir: "/in", OutputFormat: certbatch.FormatDER}, wantErr: true},
		{name: "import_no_keystore", opts: ImportTruststoreOptions{InputDir: "/in", KeystorePassword: "changeit"}, wantErr: true},
		{name: "report_negative_window", opts: ExpirationReportOptions{InputDir: "/in", WarningDays: WarningWindow(-1)}, wantErr: true},
		{name: "report_zero_window", opts: ExpirationReportOptions{InputDir: "/in", WarningDays: WarningWindow(0)}},
		{name: "report_bad_trust_store", opts: ExpirationReportOptions{InputDir: "/in", TrustStore: "corporate"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tt.opts)
			if tt.wantErr && !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("Validate = %v, want ErrInvalidOptions", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
		})
	}
}
