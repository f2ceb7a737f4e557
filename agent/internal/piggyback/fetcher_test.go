package piggyback

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/obsidianstack/piggyback/agent/internal/filecache"
	"github.com/obsidianstack/piggyback/pkg/types"
)

func newTestFetcher(st Store, hostname, address string) *Fetcher {
	return NewFetcher(st, FetcherConfig{
		FileCache: filecache.NoCache(""),
		Hostname:  hostname,
		Address:   address,
	})
}

func openFetch(t *testing.T, f *Fetcher) string {
	t.Helper()
	if err := f.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	out, err := f.Fetch()
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	return string(out)
}

func TestFetch_MergesSuccessfulInOriginOrder(t *testing.T) {
	st := newFakeStore()
	st.records["vm01"] = []types.Record{
		rec("hv1", "<<<a>>>\n1\n", true, "", types.StateOK),
		rec("hv2", "<<<b>>>\n2\n", false, "too old", types.StateOK),
		rec("hv3", "<<<c>>>\n3\n", true, "", types.StateOK),
	}
	st.records["10.0.0.1"] = []types.Record{
		rec("hv4", "<<<d>>>\n4\n", true, "", types.StateOK),
	}

	out := openFetch(t, newTestFetcher(st, "vm01", "10.0.0.1"))

	raw, labels, found := strings.Cut(out, labelsHeader)
	if !found {
		t.Fatalf("labels section missing in %q", out)
	}
	wantRaw := "<<<a>>>\n1\n<<<c>>>\n3\n<<<d>>>\n4\n"
	if raw != wantRaw {
		t.Errorf("raw portion = %q, want %q", raw, wantRaw)
	}
	wantLabels := `{"cmk/piggyback_source_hv1":"yes","cmk/piggyback_source_hv2":"yes",` +
		`"cmk/piggyback_source_hv3":"yes","cmk/piggyback_source_hv4":"yes"}` + "\n"
	if labels != wantLabels {
		t.Errorf("labels body = %q, want %q", labels, wantLabels)
	}
}

func TestFetch_LabelsIncludeFailedSources(t *testing.T) {
	st := newFakeStore()
	st.records["vm01"] = []types.Record{
		rec("hv1", "ignored", false, "Piggyback file too old: 5m", types.StateOK),
	}

	out := openFetch(t, newTestFetcher(st, "vm01", ""))

	want := labelsHeader + `{"cmk/piggyback_source_hv1":"yes"}` + "\n"
	if out != want {
		t.Errorf("Fetch = %q, want %q", out, want)
	}
}

func TestFetch_EmptySourcesNoLabels(t *testing.T) {
	f := newTestFetcher(newFakeStore(), "vm01", "10.0.0.1")
	out := openFetch(t, f)
	if len(out) != 0 {
		t.Errorf("Fetch with no sources = %q, want empty", out)
	}
}

func TestFetch_DuplicateOriginKeepsBothCopies(t *testing.T) {
	st := newFakeStore()
	st.records["vm01"] = []types.Record{rec("hv1", "X", true, "", types.StateOK)}

	// Address equal to the hostname resolves to the same store entry.
	f := newTestFetcher(st, "vm01", "vm01")
	out := openFetch(t, f)

	if len(f.Sources()) != 2 {
		t.Fatalf("Sources len = %d, want 2", len(f.Sources()))
	}
	want := "XX" + labelsHeader + `{"cmk/piggyback_source_hv1":"yes"}` + "\n"
	if out != want {
		t.Errorf("Fetch = %q, want %q", out, want)
	}
}

func TestFetch_RebuiltOnEveryCall(t *testing.T) {
	st := newFakeStore()
	st.records["vm01"] = []types.Record{rec("hv1", "X", true, "", types.StateOK)}
	f := newTestFetcher(st, "vm01", "")

	first := openFetch(t, f)
	second, err := f.Fetch()
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if first != string(second) {
		t.Errorf("repeated Fetch differs: %q vs %q", first, second)
	}
	if got := len(st.queried()); got != 2 {
		t.Errorf("store queried %d times, want 2 (one Open)", got)
	}
}

func TestOpen_QueriesHostnameAndEmptyAddress(t *testing.T) {
	st := newFakeStore()
	settings := []types.TimeSetting{{Setting: types.SettingMaxCacheAge, Threshold: 60}}
	f := NewFetcher(st, FetcherConfig{Hostname: "vm01", TimeSettings: settings})

	if err := f.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got, want := st.queried(), []string{"", "vm01"}; !slices.Equal(got, want) {
		t.Errorf("queried origins = %q, want %q", got, want)
	}
	if !slices.Equal(st.last, settings) {
		t.Errorf("store got settings %+v, want %+v", st.last, settings)
	}
}

func TestOpen_StoreFaultPropagates(t *testing.T) {
	st := newFakeStore()
	fault := errors.New("disk on fire")
	st.errs["10.0.0.1"] = fault

	f := newTestFetcher(st, "vm01", "10.0.0.1")
	err := f.Open(context.Background())
	if !errors.Is(err, fault) {
		t.Fatalf("Open err = %v, want wrapped fault", err)
	}
	if _, err := f.Fetch(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Fetch after failed Open err = %v, want ErrNotOpen", err)
	}
}

func TestFetch_BeforeOpen(t *testing.T) {
	f := newTestFetcher(newFakeStore(), "vm01", "")
	if _, err := f.Fetch(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Fetch on idle fetcher err = %v, want ErrNotOpen", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	st := newFakeStore()
	st.records["vm01"] = []types.Record{rec("hv1", "X", true, "", types.StateOK)}
	f := newTestFetcher(st, "vm01", "")
	openFetch(t, f)

	if err := f.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if len(f.Sources()) != 0 {
		t.Errorf("Sources after Close = %d, want 0", len(f.Sources()))
	}
	if _, err := f.Fetch(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Fetch after Close err = %v, want ErrNotOpen", err)
	}
}

func TestClose_OnIdleFetcher(t *testing.T) {
	f := newTestFetcher(newFakeStore(), "vm01", "")
	if err := f.Close(); err != nil {
		t.Fatalf("Close on idle: %v", err)
	}
}

func TestReopen_ClearsPriorState(t *testing.T) {
	st := newFakeStore()
	st.records["vm01"] = []types.Record{rec("hv1", "old", true, "", types.StateOK)}
	f := newTestFetcher(st, "vm01", "")
	openFetch(t, f)
	f.Close()

	st.records["vm01"] = []types.Record{rec("hv2", "new", true, "", types.StateOK)}
	out := openFetch(t, f)

	want := "new" + labelsHeader + `{"cmk/piggyback_source_hv2":"yes"}` + "\n"
	if out != want {
		t.Errorf("Fetch after reopen = %q, want %q", out, want)
	}
}

func TestWithLabelNamespace(t *testing.T) {
	st := newFakeStore()
	st.records["vm01"] = []types.Record{rec("hv1", "", true, "", types.StateOK)}

	tests := []struct {
		ns   string
		want string
	}{
		{"acme", `{"acme/piggyback_source_hv1":"yes"}`},
		{"", `{"piggyback_source_hv1":"yes"}`},
	}
	for _, tc := range tests {
		f := NewFetcher(st, FetcherConfig{Hostname: "vm01"}, WithLabelNamespace(tc.ns))
		out := openFetch(t, f)
		if want := labelsHeader + tc.want + "\n"; out != want {
			t.Errorf("namespace %q: Fetch = %q, want %q", tc.ns, out, want)
		}
	}
}

func TestFetch_RawBytesPassedThroughUnmodified(t *testing.T) {
	st := newFakeStore()
	// No trailing newline and a non-UTF-8 byte: must not be reframed.
	st.records["vm01"] = []types.Record{rec("hv1", "<<<x>>>\n\xff", true, "", types.StateOK)}

	out := openFetch(t, newTestFetcher(st, "vm01", ""))
	if !strings.HasPrefix(out, "<<<x>>>\n\xff"+labelsHeader) {
		t.Errorf("payload bytes altered: %q", out)
	}
}

func TestFetch_LabelsNotHTMLEscaped(t *testing.T) {
	st := newFakeStore()
	st.records["vm01"] = []types.Record{rec("a&b<c>", "", false, "", types.StateOK)}

	out := openFetch(t, newTestFetcher(st, "vm01", ""))
	if want := `"cmk/piggyback_source_a&b<c>":"yes"`; !strings.Contains(out, want) {
		t.Errorf("Fetch = %q, want it to contain %q", out, want)
	}
}
