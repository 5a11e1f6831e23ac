package services

import (
	"context"
	"testing"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

func TestHeightRange_SubtractRemovesCoveredPrefix(t *testing.T) {
	full := HeightRange{Min: 0, Max: 999}
	covered := HeightRange{Min: 0, Max: 499}

	remaining, err := full.Subtract(covered)
	if err != nil {
		t.Fatalf("subtract: %v", err)
	}
	if remaining.Min != 500 || remaining.Max != 999 {
		t.Errorf("expected [500,999], got %v", remaining)
	}
}

func TestHeightRange_SubtractInteriorHoleErrors(t *testing.T) {
	full := HeightRange{Min: 0, Max: 999}
	interior := HeightRange{Min: 100, Max: 200}

	if _, err := full.Subtract(interior); err == nil {
		t.Error("expected an error subtracting an interior range")
	}
}

func TestHeightRange_IsEmpty(t *testing.T) {
	if !(HeightRange{Min: 5, Max: 4}).IsEmpty() {
		t.Error("expected min > max to be empty")
	}
	if (HeightRange{Min: 0, Max: 0}).IsEmpty() {
		t.Error("expected a single-height range not to be empty")
	}
}

type fakeBulkIngestor struct {
	name   string
	chunks []BulkChunk
}

func (f *fakeBulkIngestor) Name() string { return f.name }

func (f *fakeBulkIngestor) Synchronize(ctx context.Context, presentHeight uint32, missing HeightRange) ([]BulkChunk, error) {
	return f.chunks, nil
}

func TestHeaderSync_SyncBulkStorageBackfillsBelowLiveThreshold(t *testing.T) {
	headers := make([]wdk.HeaderInfo, 0, 100)
	for i := uint32(0); i <= 99; i++ {
		headers = append(headers, wdk.HeaderInfo{Height: i, Hash: "h"})
	}
	ingestor := &fakeBulkIngestor{
		name: "fake",
		chunks: []BulkChunk{
			{Range: HeightRange{Min: 0, Max: 99}, Headers: headers},
		},
	}

	sync := NewHeaderSync(stubLogger{}, []BulkIngestor{ingestor}, nil)
	if err := sync.SyncBulkStorage(context.Background(), 110, 10); err != nil {
		t.Fatalf("sync bulk storage: %v", err)
	}

	if got := sync.BulkRange(); got.Min != 0 || got.Max != 99 {
		t.Errorf("expected bulk range [0,99], got %v", got)
	}
	if _, ok := sync.HeaderForHeight(50); !ok {
		t.Error("expected height 50 to be backfilled")
	}
}

func TestHeaderSync_SyncBulkStorageSkipsWhenBelowThreshold(t *testing.T) {
	ingestor := &fakeBulkIngestor{name: "fake"}
	sync := NewHeaderSync(stubLogger{}, []BulkIngestor{ingestor}, nil)

	if err := sync.SyncBulkStorage(context.Background(), 5, 10); err != nil {
		t.Fatalf("sync bulk storage: %v", err)
	}
	if !sync.BulkRange().IsEmpty() {
		t.Error("expected no backfill when present height is below the live threshold")
	}
}

type fakeLiveIngestor struct {
	headers chan wdk.HeaderInfo
}

func (f *fakeLiveIngestor) Name() string { return "fake-live" }

func (f *fakeLiveIngestor) Poll(ctx context.Context) (*wdk.HeaderInfo, error) {
	select {
	case hdr := <-f.headers:
		return &hdr, nil
	default:
		return nil, nil
	}
}

func TestHeaderSync_RecordLiveHeaderUpdatesLiveRange(t *testing.T) {
	sync := NewHeaderSync(stubLogger{}, nil, nil)
	sync.recordLiveHeader(wdk.HeaderInfo{Height: 500, Hash: "tip"})

	if got := sync.LiveRange(); got.Min != 500 || got.Max != 500 {
		t.Errorf("expected live range [500,500], got %v", got)
	}
	hdr, ok := sync.HeaderForHeight(500)
	if !ok || hdr.Hash != "tip" {
		t.Error("expected the live header to be recorded")
	}
}
