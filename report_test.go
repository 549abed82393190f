package filecheck

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type renderedEntry struct {
	Name  string
	Kind  FindingKind
	First bool
}

// recordingRenderer 记录渲染调用，供测试检查
type recordingRenderer struct {
	mu       sync.Mutex
	cycles   []uint64
	entries  [][]renderedEntry
	verdicts []Verdict
	failOn   string
}

func (r *recordingRenderer) Begin(cycle uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, cycle)
	r.entries = append(r.entries, nil)
	return nil
}

func (r *recordingRenderer) Entry(f Finding, first bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.Name == r.failOn {
		return errors.New("disk full")
	}
	i := len(r.entries) - 1
	r.entries[i] = append(r.entries[i], renderedEntry{Name: f.Name, Kind: f.Kind, First: first})
	return nil
}

func (r *recordingRenderer) End(v Verdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts = append(r.verdicts, v)
	return nil
}

func startPipeline(t *testing.T, r Renderer, buffer int) (*Pipeline, <-chan error, context.CancelFunc) {
	t.Helper()
	p := NewPipeline(r, buffer, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(cancel)
	return p, done, cancel
}

func TestPipelineOrderAndFraming(t *testing.T) {
	rr := &recordingRenderer{}
	p, done, cancel := startPipeline(t, rr, 0)

	for cycle := uint64(1); cycle <= 2; cycle++ {
		if err := p.Begin(cycle); err != nil {
			t.Fatal(err)
		}
		for _, f := range []Finding{
			{Kind: Unexpected, Cycle: cycle, Name: "c.txt"},
			{Kind: Match, Cycle: cycle, Name: "a.txt"},
			{Kind: Mismatch, Cycle: cycle, Name: "b.txt"},
		} {
			if err := p.Emit(f); err != nil {
				t.Fatal(err)
			}
		}
		if err := p.End(cycle, VerdictFail); err != nil {
			t.Fatalf("End(%d): %v", cycle, err)
		}
	}

	rr.mu.Lock()
	want := []renderedEntry{
		{Name: "c.txt", Kind: Unexpected, First: true},
		{Name: "a.txt", Kind: Match},
		{Name: "b.txt", Kind: Mismatch},
	}
	for i, got := range rr.entries {
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("cycle %d entries mismatch (-want +got):\n%s", i+1, diff)
		}
	}
	if diff := cmp.Diff([]uint64{1, 2}, rr.cycles); diff != "" {
		t.Errorf("cycles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Verdict{VerdictFail, VerdictFail}, rr.verdicts); diff != "" {
		t.Errorf("verdicts mismatch (-want +got):\n%s", diff)
	}
	rr.mu.Unlock()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

// TestPipelineEndWaitsForRender End 在渲染完成之前不返回
func TestPipelineEndWaitsForRender(t *testing.T) {
	gate := make(chan struct{})
	r := &gatedRenderer{gate: gate}
	p, _, _ := startPipeline(t, r, 8)

	if err := p.Begin(1); err != nil {
		t.Fatal(err)
	}
	ended := make(chan error, 1)
	go func() { ended <- p.End(1, VerdictOK) }()

	select {
	case <-ended:
		t.Fatal("End returned before the renderer finished")
	case <-time.After(30 * time.Millisecond):
	}
	close(gate)
	select {
	case err := <-ended:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("End never returned")
	}
}

type gatedRenderer struct{ gate chan struct{} }

func (g *gatedRenderer) Begin(uint64) error        { return nil }
func (g *gatedRenderer) Entry(Finding, bool) error { return nil }
func (g *gatedRenderer) End(Verdict) error         { <-g.gate; return nil }

func TestPipelineRenderFailureClosesPipeline(t *testing.T) {
	rr := &recordingRenderer{failOn: "bad"}
	p, done, _ := startPipeline(t, rr, 0)

	if err := p.Begin(1); err != nil {
		t.Fatal(err)
	}
	if err := p.Emit(Finding{Kind: Match, Cycle: 1, Name: "bad"}); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err == nil {
		t.Fatal("Run should fail when the renderer fails")
	}
	if err := p.End(1, VerdictOK); !errors.Is(err, ErrPipelineClosed) {
		t.Errorf("End after failure = %v; want ErrPipelineClosed", err)
	}
}

func TestPipelineOutOfOrder(t *testing.T) {
	p, done, _ := startPipeline(t, &recordingRenderer{}, 1)
	if err := p.Emit(Finding{Kind: Match, Name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err == nil {
		t.Fatal("finding without cycle start must be rejected")
	}
}

func TestPipelineIdleShutdown(t *testing.T) {
	_, done, cancel := startPipeline(t, &recordingRenderer{}, 0)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v; want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("idle consumer did not stop")
	}
}
