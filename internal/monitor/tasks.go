package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/database"
	"github.com/certen/bsv-wallet-toolbox/internal/entity"
	"github.com/certen/bsv-wallet-toolbox/internal/signer"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// cadenceTask is the common shape of every default task: it runs at most
// once per Interval, and only once MinAge has elapsed since construction
// for tasks that need a warm-up window (spec.md §4.6's per-task cadence
// table).
type cadenceTask struct {
	interval time.Duration
	minAge   time.Duration
	started  time.Time
	lastRun  time.Time
}

func newCadence(interval, minAge time.Duration) cadenceTask {
	return cadenceTask{interval: interval, minAge: minAge, started: time.Now()}
}

func (c *cadenceTask) trigger(now time.Time) bool {
	if now.Sub(c.started) < c.minAge {
		return false
	}
	if !c.lastRun.IsZero() && now.Sub(c.lastRun) < c.interval {
		return false
	}
	c.lastRun = now
	return true
}

// ClockTask is a 1-minute heartbeat (spec.md §4.6).
type ClockTask struct {
	cadenceTask
}

// NewClockTask constructs the Clock task.
func NewClockTask() *ClockTask {
	return &ClockTask{cadenceTask: newCadence(time.Minute, 0)}
}

func (t *ClockTask) Name() string               { return "Clock" }
func (t *ClockTask) Trigger(now time.Time) bool  { return t.trigger(now) }
func (t *ClockTask) Run(ctx context.Context) (string, error) {
	return fmt.Sprintf("heartbeat at %s", time.Now().UTC().Format(time.RFC3339)), nil
}

// SendWaitingTask broadcasts signed transactions that are waiting to be
// sent (spec.md §4.6: 8s cadence, 7s minimum age).
type SendWaitingTask struct {
	cadenceTask
	repos  *database.Repositories
	signer *signer.Signer
	batch  int
}

// NewSendWaitingTask constructs the SendWaiting task.
func NewSendWaitingTask(repos *database.Repositories, s *signer.Signer) *SendWaitingTask {
	return &SendWaitingTask{
		cadenceTask: newCadence(8*time.Second, 7*time.Second),
		repos:       repos,
		signer:      s,
		batch:       50,
	}
}

func (t *SendWaitingTask) Name() string              { return "SendWaiting" }
func (t *SendWaitingTask) Trigger(now time.Time) bool { return t.trigger(now) }

func (t *SendWaitingTask) Run(ctx context.Context) (string, error) {
	txs, err := t.repos.Transactions.ListByStatus(ctx, wdk.TxStatusSigned, t.batch)
	if err != nil {
		return "", fmt.Errorf("list signed transactions: %w", err)
	}

	sent, failed := 0, 0
	for _, tx := range txs {
		if !tx.Txid.Valid || len(tx.RawTx) == 0 {
			continue
		}
		if _, err := t.signer.ProcessAction(ctx, tx.TransactionID, tx.Txid.String, tx.RawTx); err != nil {
			failed++
			continue
		}
		sent++
	}
	return fmt.Sprintf("broadcast %d/%d waiting transactions (%d failed)", sent, len(txs), failed), nil
}

// CheckForProofsConfig exposes the retry policy spec.md §9 says should be a
// task parameter rather than hard-coded.
type CheckForProofsConfig struct {
	Backoff       []time.Duration
	MaxAttempts   int
	SafetyMargin  uint32 // blocks of reorg protection before a proof is accepted
	Batch         int
}

// DefaultCheckForProofsConfig matches the teacher's confirmation_tracker
// defaults in spirit: a handful of retries with growing backoff.
func DefaultCheckForProofsConfig() CheckForProofsConfig {
	return CheckForProofsConfig{
		Backoff:      []time.Duration{10 * time.Second, 30 * time.Second, time.Minute, 5 * time.Minute},
		MaxAttempts:  10,
		SafetyMargin: 0,
		Batch:        50,
	}
}

// CheckForProofsTask polls chain services for merkle proofs of broadcast
// transactions still awaiting confirmation (spec.md §4.6).
type CheckForProofsTask struct {
	cadenceTask
	repos  *database.Repositories
	chain  wdk.ChainServices
	cfg    CheckForProofsConfig
}

var pendingProofStatuses = []wdk.ProvenTxReqStatus{
	wdk.ReqStatusCallback, wdk.ReqStatusUnmined, wdk.ReqStatusSending,
	wdk.ReqStatusUnknown, wdk.ReqStatusUnconfirmed,
}

// NewCheckForProofsTask constructs the CheckForProofs task, polled on the
// given interval in addition to any on-demand RunOnce call.
func NewCheckForProofsTask(repos *database.Repositories, chain wdk.ChainServices, interval time.Duration, cfg CheckForProofsConfig) *CheckForProofsTask {
	return &CheckForProofsTask{
		cadenceTask: newCadence(interval, 0),
		repos:       repos,
		chain:       chain,
		cfg:         cfg,
	}
}

func (t *CheckForProofsTask) Name() string              { return "CheckForProofs" }
func (t *CheckForProofsTask) Trigger(now time.Time) bool { return t.trigger(now) }

func (t *CheckForProofsTask) Run(ctx context.Context) (string, error) {
	tip, err := t.chain.ChainTipHeight(ctx)
	if err != nil {
		return "", fmt.Errorf("get chain tip: %w", err)
	}

	var reqs []*entity.ProvenTxReq
	for _, status := range pendingProofStatuses {
		batch, err := t.repos.ProvenTxReqs.ListByStatus(ctx, status, t.cfg.Batch)
		if err != nil {
			return "", fmt.Errorf("list proven tx reqs in status %s: %w", status, err)
		}
		reqs = append(reqs, batch...)
	}

	proven, pending := 0, 0
	for _, req := range reqs {
		if t.cfg.MaxAttempts > 0 && req.Attempts >= t.cfg.MaxAttempts {
			continue
		}
		// Backoff[i] is the wait after the (i+1)th failed attempt; the last
		// entry repeats for every later attempt.
		if n := len(t.cfg.Backoff); n > 0 && req.Attempts > 0 {
			step := req.Attempts - 1
			if step >= n {
				step = n - 1
			}
			if time.Since(req.UpdatedAt) < t.cfg.Backoff[step] {
				pending++
				continue
			}
		}
		ok, err := t.tryProve(ctx, req, tip)
		if err != nil {
			_ = t.repos.ProvenTxReqs.UpdateStatus(ctx, req.ProvenTxReqID, req.Status, true)
			pending++
			continue
		}
		if ok {
			proven++
		} else {
			pending++
		}
	}
	return fmt.Sprintf("proved %d, still pending %d (tip=%d)", proven, pending, tip), nil
}

func (t *CheckForProofsTask) tryProve(ctx context.Context, req *entity.ProvenTxReq, tip uint32) (bool, error) {
	proof, err := t.chain.GetMerklePathForTransaction(ctx, req.Txid)
	if err != nil {
		return false, nil // not mined yet, not an error condition
	}
	if proof.Header.Height > tip-t.cfg.SafetyMargin {
		return false, nil // too close to the tip to be reorg-safe
	}

	valid, err := t.chain.IsValidRootForHeight(ctx, proof.Header.MerkleRoot, proof.Header.Height)
	if err != nil {
		return false, fmt.Errorf("validate merkle root for %s: %w", req.Txid, err)
	}
	if !valid {
		return false, fmt.Errorf("merkle root for %s does not match header at height %d", req.Txid, proof.Header.Height)
	}

	rawTx, err := t.chain.GetRawTx(ctx, req.Txid)
	if err != nil {
		rawTx = req.RawTx
	}

	return true, t.commitProof(ctx, req, proof, rawTx)
}

// commitProof is the idempotent write path spec.md §5 calls
// update_proven_tx_req_with_new_proven_tx: concurrent callers race to
// insert the ProvenTx (keyed on txid), the loser observes it already
// present and proceeds to mark the req and transaction completed anyway.
func (t *CheckForProofsTask) commitProof(ctx context.Context, req *entity.ProvenTxReq, proof *wdk.MerkleProof, rawTx []byte) error {
	provenTx, err := t.repos.ProvenTxs.Create(ctx, &entity.ProvenTx{
		Txid:       req.Txid,
		Height:     proof.Header.Height,
		MerklePath: proof.MerklePath,
		RawTx:      rawTx,
		BlockHash:  proof.Header.Hash,
		MerkleRoot: proof.Header.MerkleRoot,
	})
	if err != nil {
		return fmt.Errorf("insert proven tx: %w", err)
	}

	if err := t.repos.ProvenTxReqs.AttachProvenTx(ctx, req.ProvenTxReqID, provenTx.ProvenTxID); err != nil {
		return fmt.Errorf("attach proven tx to req: %w", err)
	}

	tx, err := t.repos.Transactions.GetByTxid(ctx, req.Txid)
	if err == nil {
		if err := t.repos.Transactions.AttachProvenTx(ctx, tx.TransactionID, provenTx.ProvenTxID); err != nil {
			return fmt.Errorf("attach proven tx to transaction: %w", err)
		}
	}
	return nil
}

// CheckNoSendsTask reviews transactions created with options.noSend=true
// that are still sitting in "nosend", giving the application a chance to
// release them without the monitor broadcasting on its own (spec.md §4.6).
type CheckNoSendsTask struct {
	cadenceTask
	repos *database.Repositories
	batch int
}

// NewCheckNoSendsTask constructs the CheckNoSends task.
func NewCheckNoSendsTask(repos *database.Repositories, interval time.Duration) *CheckNoSendsTask {
	return &CheckNoSendsTask{cadenceTask: newCadence(interval, 0), repos: repos, batch: 100}
}

func (t *CheckNoSendsTask) Name() string              { return "CheckNoSends" }
func (t *CheckNoSendsTask) Trigger(now time.Time) bool { return t.trigger(now) }

func (t *CheckNoSendsTask) Run(ctx context.Context) (string, error) {
	txs, err := t.repos.Transactions.ListByStatus(ctx, wdk.TxStatusNoSend, t.batch)
	if err != nil {
		return "", fmt.Errorf("list nosend transactions: %w", err)
	}
	return fmt.Sprintf("%d transactions held in nosend", len(txs)), nil
}

// FailAbandonedTask abandons transactions stuck in unprocessed/unsigned
// past a grace period (spec.md §4.6: default 5 minutes). It never touches a
// transaction already in a terminal state (spec.md §8 testable property 9).
type FailAbandonedTask struct {
	cadenceTask
	repos    *database.Repositories
	grace    time.Duration
	batch    int
}

// NewFailAbandonedTask constructs the FailAbandoned task.
func NewFailAbandonedTask(repos *database.Repositories, interval, grace time.Duration) *FailAbandonedTask {
	if grace <= 0 {
		grace = 5 * time.Minute
	}
	return &FailAbandonedTask{cadenceTask: newCadence(interval, 0), repos: repos, grace: grace, batch: 100}
}

func (t *FailAbandonedTask) Name() string              { return "FailAbandoned" }
func (t *FailAbandonedTask) Trigger(now time.Time) bool { return t.trigger(now) }

func (t *FailAbandonedTask) Run(ctx context.Context) (string, error) {
	cutoff := time.Now().Add(-t.grace)
	abandoned := 0
	for _, status := range []wdk.TxStatus{wdk.TxStatusUnprocessed, wdk.TxStatusUnsigned} {
		txs, err := t.repos.Transactions.ListByStatusOlderThan(ctx, status, cutoff, t.batch)
		if err != nil {
			return "", fmt.Errorf("list stale %s transactions: %w", status, err)
		}
		for _, tx := range txs {
			if tx.Status.IsTerminal() {
				continue // never observed in practice given the status filter, but guards the invariant explicitly
			}
			if err := t.repos.Transactions.UpdateStatus(ctx, tx.TransactionID, wdk.TxStatusAborted); err != nil {
				return "", fmt.Errorf("abort abandoned transaction %d: %w", tx.TransactionID, err)
			}
			abandoned++
		}
	}
	return fmt.Sprintf("abandoned %d stale transactions (older than %s)", abandoned, t.grace), nil
}

// ReviewStatusTask audits for transactions whose storage status and
// proven-tx-req status have drifted out of sync, logging what it finds for
// operator review (spec.md §4.6 names it without detailing remediation).
type ReviewStatusTask struct {
	cadenceTask
	repos *database.Repositories
}

// NewReviewStatusTask constructs the ReviewStatus task.
func NewReviewStatusTask(repos *database.Repositories, interval time.Duration) *ReviewStatusTask {
	return &ReviewStatusTask{cadenceTask: newCadence(interval, 0), repos: repos}
}

func (t *ReviewStatusTask) Name() string              { return "ReviewStatus" }
func (t *ReviewStatusTask) Trigger(now time.Time) bool { return t.trigger(now) }

func (t *ReviewStatusTask) Run(ctx context.Context) (string, error) {
	unproven, err := t.repos.Transactions.ListByStatus(ctx, wdk.TxStatusUnproven, 1000)
	if err != nil {
		return "", fmt.Errorf("list unproven transactions: %w", err)
	}
	drifted := 0
	for _, tx := range unproven {
		if !tx.Txid.Valid {
			continue
		}
		req, err := t.repos.ProvenTxReqs.GetByTxid(ctx, tx.Txid.String)
		if err == nil && req.Status.IsTerminal() && req.Status != wdk.ReqStatusCompleted {
			drifted++
		}
	}
	return fmt.Sprintf("reviewed %d unproven transactions, %d drifted", len(unproven), drifted), nil
}

// UnFailTask reconsiders transactions marked failed whose proof request has
// since completed, a recovery path for transient broadcast errors (spec.md
// §4.6).
type UnFailTask struct {
	cadenceTask
	repos *database.Repositories
	batch int
}

// NewUnFailTask constructs the UnFail task.
func NewUnFailTask(repos *database.Repositories, interval time.Duration) *UnFailTask {
	return &UnFailTask{cadenceTask: newCadence(interval, 0), repos: repos, batch: 100}
}

func (t *UnFailTask) Name() string              { return "UnFail" }
func (t *UnFailTask) Trigger(now time.Time) bool { return t.trigger(now) }

func (t *UnFailTask) Run(ctx context.Context) (string, error) {
	failed, err := t.repos.Transactions.ListByStatus(ctx, wdk.TxStatusFailed, t.batch)
	if err != nil {
		return "", fmt.Errorf("list failed transactions: %w", err)
	}
	recovered := 0
	for _, tx := range failed {
		if !tx.Txid.Valid {
			continue
		}
		req, err := t.repos.ProvenTxReqs.GetByTxid(ctx, tx.Txid.String)
		if err != nil || req.Status != wdk.ReqStatusCompleted {
			continue
		}
		if err := t.repos.Transactions.UpdateStatus(ctx, tx.TransactionID, wdk.TxStatusCompleted); err != nil {
			return "", fmt.Errorf("un-fail transaction %d: %w", tx.TransactionID, err)
		}
		recovered++
	}
	return fmt.Sprintf("recovered %d transactions with a completed proof", recovered), nil
}

// MonitorCallHistoryTask is a diagnostics task: it trims nothing itself, it
// reports the recent event count per other task so operators can see the
// scheduler is alive without tailing logs (spec.md §4.6).
type MonitorCallHistoryTask struct {
	cadenceTask
	repos     *database.Repositories
	taskNames []string
}

// NewMonitorCallHistoryTask constructs the MonitorCallHistory task, scoped
// to the names of the other tasks registered on the same Monitor.
func NewMonitorCallHistoryTask(repos *database.Repositories, interval time.Duration, taskNames []string) *MonitorCallHistoryTask {
	return &MonitorCallHistoryTask{cadenceTask: newCadence(interval, 0), repos: repos, taskNames: taskNames}
}

func (t *MonitorCallHistoryTask) Name() string              { return "MonitorCallHistory" }
func (t *MonitorCallHistoryTask) Trigger(now time.Time) bool { return t.trigger(now) }

func (t *MonitorCallHistoryTask) Run(ctx context.Context) (string, error) {
	total := 0
	for _, name := range t.taskNames {
		events, err := t.repos.MonitorEvents.RecentForTask(ctx, name, 1)
		if err != nil {
			return "", fmt.Errorf("recent events for %s: %w", name, err)
		}
		total += len(events)
	}
	return fmt.Sprintf("%d/%d tasks have recorded at least one run", total, len(t.taskNames)), nil
}

// SyncWhenIdleTask nudges stale per-user sync state against the configured
// remote storage identity (spec.md §4.6).
type SyncWhenIdleTask struct {
	cadenceTask
	repos              *database.Repositories
	storageIdentityKey string
	staleAfter         time.Duration
}

// NewSyncWhenIdleTask constructs the SyncWhenIdle task.
func NewSyncWhenIdleTask(repos *database.Repositories, interval, staleAfter time.Duration, storageIdentityKey string) *SyncWhenIdleTask {
	return &SyncWhenIdleTask{
		cadenceTask:        newCadence(interval, 0),
		repos:              repos,
		storageIdentityKey: storageIdentityKey,
		staleAfter:         staleAfter,
	}
}

func (t *SyncWhenIdleTask) Name() string              { return "SyncWhenIdle" }
func (t *SyncWhenIdleTask) Trigger(now time.Time) bool { return t.trigger(now) }

func (t *SyncWhenIdleTask) Run(ctx context.Context) (string, error) {
	stale, err := t.repos.SyncStates.ListStale(ctx, int(t.staleAfter.Seconds()))
	if err != nil {
		return "", fmt.Errorf("list stale sync states: %w", err)
	}
	for _, s := range stale {
		if _, err := t.repos.SyncStates.Upsert(ctx, s.UserID, t.storageIdentityKey, "pending"); err != nil {
			return "", fmt.Errorf("mark sync pending for user %d: %w", s.UserID, err)
		}
	}
	return fmt.Sprintf("flagged %d stale sync states for resync", len(stale)), nil
}

// reorgEntry is one deactivated header held in the Reorg task's retry
// queue (spec.md §4.6 Reorg handling).
type reorgEntry struct {
	when  time.Time
	tries int
	hash  string
}

// ReorgTask holds headers deactivated by a reorg notification in a retry
// queue (spec.md §4.6). Each Run compares every queued hash with the header
// at the current chain tip and drops the entry once they differ or after
// maxReorgRetries runs. It does not re-verify the proofs of affected
// transactions or change their status.
type ReorgTask struct {
	cadenceTask
	repos *database.Repositories
	chain wdk.ChainServices
	mu    sync.Mutex
	queue []reorgEntry
}

// NewReorgTask constructs the Reorg task.
func NewReorgTask(repos *database.Repositories, chain wdk.ChainServices, interval time.Duration) *ReorgTask {
	return &ReorgTask{cadenceTask: newCadence(interval, 0), repos: repos, chain: chain}
}

func (t *ReorgTask) Name() string              { return "Reorg" }
func (t *ReorgTask) Trigger(now time.Time) bool { return t.trigger(now) }

// NotifyDeactivated enqueues headers a reorg notification reported as
// deactivated, for the next Run to re-verify.
func (t *ReorgTask) NotifyDeactivated(hashes []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for _, h := range hashes {
		t.queue = append(t.queue, reorgEntry{when: now, tries: 0, hash: h})
	}
}

// maxReorgRetries bounds how long a deactivated header stays in the retry
// queue before the task gives up waiting for the chain to settle.
const maxReorgRetries = 5

func (t *ReorgTask) Run(ctx context.Context) (string, error) {
	t.mu.Lock()
	queue := t.queue
	t.queue = nil
	t.mu.Unlock()

	if len(queue) == 0 {
		return "no pending reorg re-verification", nil
	}

	tip, err := t.chain.ChainTipHeight(ctx)
	if err != nil {
		t.mu.Lock()
		t.queue = append(t.queue, queue...)
		t.mu.Unlock()
		return "", fmt.Errorf("get chain tip: %w", err)
	}

	var remaining []reorgEntry
	resolved := 0
	for _, entry := range queue {
		header, err := t.chain.ChainHeaderByHeight(ctx, tip)
		entry.tries++
		if err == nil && header != nil && header.Hash != entry.hash {
			resolved++ // the old header is no longer on the active chain; settled
			continue
		}
		if entry.tries >= maxReorgRetries {
			resolved++ // give up after enough retries rather than queueing forever
			continue
		}
		remaining = append(remaining, entry)
	}

	t.mu.Lock()
	t.queue = append(t.queue, remaining...)
	pending := len(t.queue)
	t.mu.Unlock()

	return fmt.Sprintf("reorg queue drained by %d, %d still pending", resolved, pending), nil
}

// NewHeaderTask reacts to new chain tip headers by prompting CheckForProofs
// to run on-demand rather than waiting for its own cadence (spec.md §4.6).
type NewHeaderTask struct {
	cadenceTask
	proofs *CheckForProofsTask
}

// NewNewHeaderTask constructs the NewHeader task, bound to the
// CheckForProofs task it wakes up.
func NewNewHeaderTask(proofs *CheckForProofsTask, interval time.Duration) *NewHeaderTask {
	return &NewHeaderTask{cadenceTask: newCadence(interval, 0), proofs: proofs}
}

func (t *NewHeaderTask) Name() string              { return "NewHeader" }
func (t *NewHeaderTask) Trigger(now time.Time) bool { return t.trigger(now) }

func (t *NewHeaderTask) Run(ctx context.Context) (string, error) {
	if t.proofs == nil {
		return "no bound CheckForProofs task", nil
	}
	return t.proofs.Run(ctx)
}

// PurgeConfig carries the Purge task's age thresholds per table. Run reads
// only MonitorEventsAgeDays; SpentOutputsAge, CompletedTxAge and
// FailedTxAge are carried but not applied.
type PurgeConfig struct {
	SpentOutputsAge    time.Duration
	CompletedTxAge     time.Duration
	FailedTxAge        time.Duration
	MonitorEventsAgeDays int
}

// PurgeTask deletes monitor events older than MonitorEventsAgeDays
// (default 30 days). It does not purge outputs or transactions.
type PurgeTask struct {
	cadenceTask
	repos *database.Repositories
	cfg   PurgeConfig
}

// NewPurgeTask constructs the Purge task.
func NewPurgeTask(repos *database.Repositories, interval time.Duration, cfg PurgeConfig) *PurgeTask {
	return &PurgeTask{cadenceTask: newCadence(interval, 0), repos: repos, cfg: cfg}
}

func (t *PurgeTask) Name() string              { return "Purge" }
func (t *PurgeTask) Trigger(now time.Time) bool { return t.trigger(now) }

func (t *PurgeTask) Run(ctx context.Context) (string, error) {
	days := t.cfg.MonitorEventsAgeDays
	if days <= 0 {
		days = 30
	}
	n, err := t.repos.MonitorEvents.Purge(ctx, days)
	if err != nil {
		return "", fmt.Errorf("purge monitor events: %w", err)
	}
	return fmt.Sprintf("purged %d monitor events older than %d days", n, days), nil
}
