package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// BulkChunk is one contiguous slab of headers a BulkIngestor hands back,
// the unit HeaderSync folds into its in-memory bulk store.
type BulkChunk struct {
	Range   HeightRange
	Headers []wdk.HeaderInfo // Headers[i].Height == Range.Min+i
}

// BulkIngestor backfills historical headers for a missing HeightRange. The
// concrete network fetch behind a real implementation (WhatsOnChain, ARC,
// a peer) is an external collaborator, out of scope per spec.md §1; this
// interface is the contract HeaderSync drives, mirroring chaintracks'
// BulkManager/NamedBulkIngestor split between sync orchestration and
// source-specific fetch.
type BulkIngestor interface {
	Name() string
	Synchronize(ctx context.Context, presentHeight uint32, missing HeightRange) ([]BulkChunk, error)
}

// LiveIngestor supplies newly-mined headers once HeaderSync has backfilled
// close enough to the chain tip to switch from bulk catch-up to per-block
// polling, mirroring chaintracks' live_ingestor_factory handoff.
type LiveIngestor interface {
	Name() string
	Poll(ctx context.Context) (*wdk.HeaderInfo, error)
}

const defaultBulkChunkSize = 100000

// HeaderSync is the bulk-then-live header synchronization state machine
// (grounded on chaintracks' BulkManager.sync_bulk_storage and
// live_ingestor_factory.create_live_ingestors): it backfills everything
// below presentHeight-liveHeightThreshold through registered
// BulkIngestors, then hands off to LiveIngestors polling their own
// interval for anything at or above that threshold. This is the
// synchronization shape only — it holds no opinion on where a header
// actually comes from, so it has no HTTP transport of its own.
type HeaderSync struct {
	bulkIngestors []BulkIngestor
	liveIngestors []LiveIngestor
	chunkSize     int
	logger        Logger

	mu      sync.RWMutex
	bulk    HeightRange
	live    HeightRange
	headers map[uint32]wdk.HeaderInfo
}

// NewHeaderSync constructs an empty HeaderSync over the given ingestors.
func NewHeaderSync(logger Logger, bulkIngestors []BulkIngestor, liveIngestors []LiveIngestor) *HeaderSync {
	return &HeaderSync{
		bulkIngestors: bulkIngestors,
		liveIngestors: liveIngestors,
		chunkSize:     defaultBulkChunkSize,
		logger:        logger,
		bulk:          HeightRange{Min: 0, Max: -1},
		live:          HeightRange{Min: 0, Max: -1},
		headers:       make(map[uint32]wdk.HeaderInfo),
	}
}

// SyncBulkStorage backfills headers below presentHeight-liveHeightThreshold,
// feeding the missing range through each registered BulkIngestor in
// priority order until either the range is fully covered or every
// ingestor has been tried once.
func (h *HeaderSync) SyncBulkStorage(ctx context.Context, presentHeight, liveHeightThreshold uint32) error {
	if presentHeight <= liveHeightThreshold {
		return nil
	}
	targetMax := int64(presentHeight) - int64(liveHeightThreshold)

	missing, err := HeightRange{Min: 0, Max: targetMax}.Subtract(h.BulkRange())
	if err != nil {
		return fmt.Errorf("compute missing header range: %w", err)
	}

	for _, ingestor := range h.bulkIngestors {
		if missing.IsEmpty() {
			break
		}
		chunks, err := ingestor.Synchronize(ctx, presentHeight, missing)
		if err != nil {
			if h.logger != nil {
				h.logger.Printf("header sync: bulk ingestor %s failed: %v", ingestor.Name(), err)
			}
			continue
		}
		h.applyBulkChunks(chunks)

		missing, err = missing.Subtract(h.BulkRange())
		if err != nil {
			return fmt.Errorf("recompute missing header range: %w", err)
		}
	}
	return nil
}

func (h *HeaderSync) applyBulkChunks(chunks []BulkChunk) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, chunk := range chunks {
		for _, hdr := range chunk.Headers {
			h.headers[hdr.Height] = hdr
		}
		if union, err := h.bulk.Union(chunk.Range); err == nil {
			h.bulk = union
		} else {
			h.bulk = chunk.Range
		}
	}
}

// HeaderForHeight returns a previously-synced header, from either the bulk
// or live store.
func (h *HeaderSync) HeaderForHeight(height uint32) (wdk.HeaderInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hdr, ok := h.headers[height]
	return hdr, ok
}

// BulkRange reports the height range currently covered by bulk storage.
func (h *HeaderSync) BulkRange() HeightRange {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bulk
}

// LiveRange reports the height range currently covered by live polling.
func (h *HeaderSync) LiveRange() HeightRange {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live
}

// RunLive polls every registered LiveIngestor on its own goroutine, on the
// given period, until ctx is cancelled. The monitor's own loop (spec.md
// §4.6) is expected to own ctx's lifetime.
func (h *HeaderSync) RunLive(ctx context.Context, period time.Duration) {
	if len(h.liveIngestors) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, ingestor := range h.liveIngestors {
		wg.Add(1)
		go func(li LiveIngestor) {
			defer wg.Done()
			h.pollLoop(ctx, li, period)
		}(ingestor)
	}
	wg.Wait()
}

func (h *HeaderSync) pollLoop(ctx context.Context, li LiveIngestor, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hdr, err := li.Poll(ctx)
			if err != nil {
				if h.logger != nil {
					h.logger.Printf("header sync: live ingestor %s failed: %v", li.Name(), err)
				}
				continue
			}
			if hdr == nil {
				continue
			}
			h.recordLiveHeader(*hdr)
		}
	}
}

func (h *HeaderSync) recordLiveHeader(hdr wdk.HeaderInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.headers[hdr.Height] = hdr
	single := HeightRange{Min: hdr.Height, Max: int64(hdr.Height)}
	if union, err := h.live.Union(single); err == nil {
		h.live = union
	} else {
		h.live = single
	}
}
