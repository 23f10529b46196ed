package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/converso-ai/chat-backend/pkg/types"
	"github.com/converso-ai/chat-backend/pkg/utils"
)

// Reconciler periodically sweeps soft-deleted knowledge bases and chats and
// drives their cascades to completion. It is the crash-recovery mechanism:
// whatever a direct cascade failed to finish stays soft-deleted in the
// database, and the next pass retries it. The first pass runs immediately on
// Start so a restart drains the backlog without waiting a full interval.
type Reconciler struct {
	engine *Engine
	store  Store
	log    *zap.Logger

	interval  time.Duration
	kbBatch   int
	chatBatch int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconciler builds a reconciler around an engine. Batch sizes cap how
// many soft-deleted entities of each kind a single pass processes; the rest
// wait for the next tick.
func NewReconciler(engine *Engine, store Store, interval time.Duration, kbBatch, chatBatch int, log *zap.Logger) *Reconciler {
	return &Reconciler{
		engine:    engine,
		store:     store,
		log:       log,
		interval:  interval,
		kbBatch:   kbBatch,
		chatBatch: chatBatch,
	}
}

// Start launches the reconciliation loop. The first pass runs right away,
// subsequent ones on every interval tick. Call Stop to shut the loop down.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go utils.GoRecover(func() {
		defer r.wg.Done()

		r.Reconcile(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.log.Info("Reconciliation loop stopped")
				return
			case <-ticker.C:
				r.Reconcile(ctx)
			}
		}
	}, "Reconciliation loop")
}

// Stop cancels the loop and waits for an in-flight pass to return.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Reconcile runs one full pass: a bounded batch of soft-deleted knowledge
// bases, then a bounded batch of soft-deleted chats. Chat files are swept in
// one combined orphan pass at the end, so a file shared by several deleted
// chats is resolved and removed once.
func (r *Reconciler) Reconcile(ctx context.Context) {
	r.reconcileKnowledgeBases(ctx)
	r.reconcileChats(ctx)
}

func (r *Reconciler) reconcileKnowledgeBases(ctx context.Context) {
	kbs, err := r.store.ListSoftDeletedKnowledgeBases(ctx, r.kbBatch)
	if err != nil {
		r.log.Error("Failed to list soft-deleted knowledge bases", zap.Error(err))
		return
	}

	for _, kb := range kbs {
		if ctx.Err() != nil {
			return
		}

		// Collected before the cascade removes the junction rows.
		fileUIDs, err := r.store.GetFileUIDsByKnowledgeBaseUID(ctx, kb.UID)
		if err != nil {
			r.log.Error("Failed to resolve knowledge base files",
				zap.String("kb_uid", kb.UID.String()), zap.Error(err))
			continue
		}

		report := r.engine.DeleteKnowledgeBase(ctx, kb.UID, false, nil)
		report.Merge(r.engine.DeleteOrphanedFilesBatch(ctx, fileUIDs, false, nil))
		r.logReport("knowledge base", kb.UID.String(), report)
	}
}

func (r *Reconciler) reconcileChats(ctx context.Context) {
	chats, err := r.store.ListSoftDeletedChats(ctx, r.chatBatch)
	if err != nil {
		r.log.Error("Failed to list soft-deleted chats", zap.Error(err))
		return
	}

	var batchFileUIDs []types.FileUIDType
	for _, chat := range chats {
		if ctx.Err() != nil {
			return
		}

		fileUIDs, err := r.store.GetFileUIDsByChatUID(ctx, chat.UID)
		if err != nil {
			r.log.Error("Failed to resolve chat files",
				zap.String("chat_uid", chat.UID.String()), zap.Error(err))
			continue
		}
		batchFileUIDs = append(batchFileUIDs, fileUIDs...)

		report := r.engine.DeleteChat(ctx, chat.UID, false, nil)
		r.logReport("chat", chat.UID.String(), report)
	}

	if len(batchFileUIDs) > 0 && ctx.Err() == nil {
		report := r.engine.DeleteOrphanedFilesBatch(ctx, batchFileUIDs, false, nil)
		r.logReport("chat file batch", "", report)
	}
}

func (r *Reconciler) logReport(kind, uid string, report *Report) {
	fields := append([]zap.Field{
		zap.String("kind", kind),
		zap.String("uid", uid),
	}, report.ZapFields()...)

	if report.HasErrors() {
		r.log.Error("Cascade completed with errors", fields...)
		return
	}
	r.log.Info("Cascade completed", fields...)
}
