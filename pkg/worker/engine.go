// Package worker implements the deletion cascades and the reconciliation
// loop that drives them. Cascades remove an entity's footprint from the
// vector database, object storage and the relational database, in that
// order, and report what happened instead of failing: the soft-deleted
// database row is the only durable marker of pending work, so it is removed
// last and only the database step can abort a cascade.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/converso-ai/chat-backend/pkg/constant"
	errorsx "github.com/converso-ai/chat-backend/pkg/errors"
	"github.com/converso-ai/chat-backend/pkg/repository"
	"github.com/converso-ai/chat-backend/pkg/repository/object"
	"github.com/converso-ai/chat-backend/pkg/types"
)

// Store is the relational persistence surface the cascades need. It is
// satisfied by repository.Repository.
type Store interface {
	GetKnowledgeBaseByUID(ctx context.Context, kbUID types.KBUIDType) (*repository.KnowledgeBaseModel, error)
	SoftDeleteKnowledgeBasesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	ListSoftDeletedKnowledgeBases(ctx context.Context, limit int) ([]repository.KnowledgeBaseModel, error)
	HardDeleteKnowledgeBase(ctx context.Context, kbUID types.KBUIDType) (map[string]int64, error)
	GetFileUIDsByKnowledgeBaseUID(ctx context.Context, kbUID types.KBUIDType) ([]types.FileUIDType, error)
	GetKnowledgeBaseUIDsByFileUID(ctx context.Context, fileUID types.FileUIDType) ([]types.KBUIDType, error)

	GetChatByUID(ctx context.Context, chatUID types.ChatUIDType) (*repository.ChatModel, error)
	SoftDeleteChatsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	ListSoftDeletedChats(ctx context.Context, limit int) ([]repository.ChatModel, error)
	HardDeleteChat(ctx context.Context, chatUID types.ChatUIDType) (map[string]int64, error)
	GetFileUIDsByChatUID(ctx context.Context, chatUID types.ChatUIDType) ([]types.FileUIDType, error)
	GetTagUIDsByChatUID(ctx context.Context, chatUID types.ChatUIDType) ([]types.TagUIDType, error)

	GetFileByUID(ctx context.Context, fileUID types.FileUIDType) (*repository.FileModel, error)
	GetFilesByUIDs(ctx context.Context, fileUIDs []types.FileUIDType) ([]repository.FileModel, error)
	GetReferencedFileUIDs(ctx context.Context, candidates []types.FileUIDType) (map[types.FileUIDType]struct{}, error)
	HardDeleteFile(ctx context.Context, fileUID types.FileUIDType) (map[string]int64, error)
	HardDeleteFiles(ctx context.Context, fileUIDs []types.FileUIDType) (map[string]int64, error)

	CountLiveChatsByTagUID(ctx context.Context, tagUID types.TagUIDType) (int64, error)
	DeleteTag(ctx context.Context, tagUID types.TagUIDType) (int64, error)

	RemoveKnowledgeBaseFromModelDefs(ctx context.Context, kbUID types.KBUIDType) (int64, error)

	GetUserByUID(ctx context.Context, userUID types.UserUIDType) (*repository.UserModel, error)
	HardDeleteMemoriesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteMessagesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteChannelMembersByUser(ctx context.Context, userUID types.UserUIDType) (int64, error)
	HardDeleteTagsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteFoldersByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeletePromptsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteToolsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteFunctionsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteModelDefsByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteFeedbackByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteNotesByOwner(ctx context.Context, owner types.OwnerUIDType) (int64, error)
	HardDeleteOAuthSessionsByUser(ctx context.Context, userUID types.UserUIDType) (int64, error)
	HardDeleteGroupMembersByUser(ctx context.Context, userUID types.UserUIDType) (int64, error)
	HardDeleteAuthByUserUID(ctx context.Context, userUID types.UserUIDType) (int64, error)
	HardDeleteUser(ctx context.Context, userUID types.UserUIDType) (int64, error)
}

// Engine runs deletion cascades against the three stores. All its methods
// return a report and never an error: individual store failures are recorded
// and the cascade moves on, except for the final database step, whose
// failure leaves the soft-deleted row in place so the reconciler retries
// the whole cascade later.
type Engine struct {
	store   Store
	vector  repository.VectorDatabase
	storage object.Storage
	pool    *CleanupPool
	log     *zap.Logger
}

// NewEngine assembles a deletion engine. The pool is shared with every
// other engine consumer in the process.
func NewEngine(store Store, vector repository.VectorDatabase, storage object.Storage, pool *CleanupPool, log *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		vector:  vector,
		storage: storage,
		pool:    pool,
		log:     log,
	}
}

// DeleteFile removes a single file's full footprint: its vectors in every
// knowledge base collection that still references it, its private
// per-document collection, its original blob and finally its rows.
//
// processed carries file UIDs already handled within an enclosing cascade so
// a file shared between two deleted parents is only cleaned once; pass nil
// at the top level.
func (e *Engine) DeleteFile(ctx context.Context, fileUID types.FileUIDType, processed map[types.FileUIDType]struct{}) *Report {
	report := NewReport()
	if processed != nil {
		if _, ok := processed[fileUID]; ok {
			return report
		}
	}

	file, err := e.store.GetFileByUID(ctx, fileUID)
	if err != nil {
		if errors.Is(err, errorsx.ErrNotFound) {
			// A previous (possibly interrupted) cascade already removed the
			// row, and the row goes last. Nothing left to do.
			e.log.Debug("File already deleted, skipping cascade", zap.String("file_uid", fileUID.String()))
			if processed != nil {
				processed[fileUID] = struct{}{}
			}
			return report
		}
		report.Errorf("fetching file %s: %v", fileUID.String(), err)
		return report
	}

	// Vectors first: filtered deletions in every knowledge base collection
	// that still references the file.
	kbUIDs, err := e.store.GetKnowledgeBaseUIDsByFileUID(ctx, fileUID)
	if err != nil {
		report.Errorf("resolving knowledge bases of file %s: %v", fileUID.String(), err)
	}
	for _, kbUID := range kbUIDs {
		collection := constant.KBCollectionName(kbUID)

		report.IncVectorDeletions()
		if err := e.vector.DeleteEmbeddingsWithFileUID(ctx, collection, fileUID); err != nil {
			report.Errorf("deleting vectors of file %s in %s: %v", fileUID.String(), collection, err)
		}
		if file.ContentHash != "" {
			report.IncVectorDeletions()
			if err := e.vector.DeleteEmbeddingsWithContentHash(ctx, collection, file.ContentHash); err != nil {
				report.Errorf("deleting vectors by content hash in %s: %v", collection, err)
			}
		}
	}

	// The file's private per-document collection.
	e.dropCollection(ctx, constant.FileCollectionName(fileUID), report)

	// Storage second.
	if file.Destination != "" {
		if err := e.storage.DeleteFile(ctx, file.Destination); err != nil {
			report.Errorf("deleting blob %s: %v", file.Destination, err)
		} else {
			report.AddBlobsDeleted(1)
		}
	}

	// Database last. If this fails the row survives and the reconciler will
	// drive the cascade again.
	counts, err := e.store.HardDeleteFile(ctx, fileUID)
	if err != nil {
		report.Errorf("deleting file rows %s: %v", fileUID.String(), err)
		return report
	}
	report.AddRowCounts(counts)

	if processed != nil {
		processed[fileUID] = struct{}{}
	}
	return report
}

// DeleteOrphanedFilesBatch removes the given files if nothing references
// them anymore, batching the expensive store operations: private vector
// collections are dropped through the shared cleanup pool, blobs are removed
// in one storage round trip and rows in one database round trip. With force
// set, the reference check is skipped and every candidate is deleted.
//
// Only the files whose rows were actually removed are added to processed.
// A candidate spared by the reference check stays unmarked: its last
// reference may disappear later in the same cascade, and a later DeleteFile
// must still clean it up.
func (e *Engine) DeleteOrphanedFilesBatch(ctx context.Context, candidates []types.FileUIDType, force bool, processed map[types.FileUIDType]struct{}) *Report {
	report := NewReport()
	if len(candidates) == 0 {
		return report
	}

	seen := make(map[types.FileUIDType]struct{}, len(candidates))
	deduped := make([]types.FileUIDType, 0, len(candidates))
	for _, uid := range candidates {
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		deduped = append(deduped, uid)
	}

	orphans := deduped
	if !force {
		referenced, err := e.store.GetReferencedFileUIDs(ctx, deduped)
		if err != nil {
			report.Errorf("resolving file references: %v", err)
			return report
		}
		orphans = orphans[:0]
		for _, uid := range deduped {
			if _, ok := referenced[uid]; !ok {
				orphans = append(orphans, uid)
			}
		}
	}
	if len(orphans) == 0 {
		return report
	}

	files, err := e.store.GetFilesByUIDs(ctx, orphans)
	if err != nil {
		report.Errorf("fetching orphaned files: %v", err)
		return report
	}

	// Vectors first: the per-document collections, dropped in parallel under
	// the process-wide concurrency cap.
	var dispatched sync.WaitGroup
	for _, file := range files {
		collection := constant.FileCollectionName(file.UID)

		dispatched.Add(1)
		err := e.pool.Submit(ctx, "drop collection "+collection, func() {
			defer dispatched.Done()
			e.dropCollection(ctx, collection, report)
		})
		if err != nil {
			dispatched.Done()
			report.Errorf("dispatching cleanup of %s: %v", collection, err)
			break
		}
	}
	dispatched.Wait()
	if ctx.Err() != nil {
		// Interrupted mid-batch. The rows stay soft-deleted or orphaned and
		// the next reconciliation pass picks them up.
		return report
	}

	// Storage second: one batched removal.
	paths := make([]string, 0, len(files))
	for _, file := range files {
		if file.Destination != "" {
			paths = append(paths, file.Destination)
		}
	}
	if len(paths) > 0 {
		deleted, err := e.storage.DeleteFiles(ctx, paths)
		report.AddBlobsDeleted(deleted)
		if err != nil {
			report.Errorf("deleting blobs: %v", err)
		}
	}

	// Database last: one batched removal.
	counts, err := e.store.HardDeleteFiles(ctx, orphans)
	if err != nil {
		report.Errorf("deleting file rows: %v", err)
		return report
	}
	report.AddRowCounts(counts)

	if processed != nil {
		for _, uid := range orphans {
			processed[uid] = struct{}{}
		}
	}
	return report
}

// DeleteChat removes a chat: its tag links (deleting tags no live chat uses
// anymore), its file links and its row. With deleteFiles set, files that
// become unreferenced are fully cascaded too; the reconciler passes false
// and sweeps the files of a whole batch of chats in one orphan pass instead.
func (e *Engine) DeleteChat(ctx context.Context, chatUID types.ChatUIDType, deleteFiles bool, processed map[types.FileUIDType]struct{}) *Report {
	report := NewReport()

	if _, err := e.store.GetChatByUID(ctx, chatUID); err != nil {
		if errors.Is(err, errorsx.ErrNotFound) {
			e.log.Warn("Chat already deleted, skipping cascade", zap.String("chat_uid", chatUID.String()))
			return report
		}
		report.Errorf("fetching chat %s: %v", chatUID.String(), err)
		return report
	}

	// Captured before the row deletion takes the junction rows with it.
	tagUIDs, err := e.store.GetTagUIDsByChatUID(ctx, chatUID)
	if err != nil {
		report.Errorf("resolving tags of chat %s: %v", chatUID.String(), err)
	}

	var fileUIDs []types.FileUIDType
	if deleteFiles {
		fileUIDs, err = e.store.GetFileUIDsByChatUID(ctx, chatUID)
		if err != nil {
			report.Errorf("resolving files of chat %s: %v", chatUID.String(), err)
		}
	}

	counts, err := e.store.HardDeleteChat(ctx, chatUID)
	if err != nil {
		report.Errorf("deleting chat rows %s: %v", chatUID.String(), err)
		return report
	}
	report.AddRowCounts(counts)

	// With the chat and its links gone, tags without any remaining live chat
	// are garbage.
	for _, tagUID := range tagUIDs {
		n, err := e.store.CountLiveChatsByTagUID(ctx, tagUID)
		if err != nil {
			report.Errorf("counting chats of tag %s: %v", tagUID.String(), err)
			continue
		}
		if n > 0 {
			continue
		}
		deleted, err := e.store.DeleteTag(ctx, tagUID)
		if err != nil {
			report.Errorf("deleting tag %s: %v", tagUID.String(), err)
			continue
		}
		report.AddRows(repository.TagModel{}.TableName(), deleted)
	}

	if deleteFiles && len(fileUIDs) > 0 {
		report.Merge(e.DeleteOrphanedFilesBatch(ctx, fileUIDs, false, processed))
	}

	return report
}

// DeleteKnowledgeBase removes a knowledge base: its vector collection, its
// references in model definitions, its file links and its row. With
// deleteFiles set, files that become unreferenced are fully cascaded too.
func (e *Engine) DeleteKnowledgeBase(ctx context.Context, kbUID types.KBUIDType, deleteFiles bool, processed map[types.FileUIDType]struct{}) *Report {
	report := NewReport()

	if _, err := e.store.GetKnowledgeBaseByUID(ctx, kbUID); err != nil {
		if errors.Is(err, errorsx.ErrNotFound) {
			e.log.Warn("Knowledge base already deleted, skipping cascade", zap.String("kb_uid", kbUID.String()))
			return report
		}
		report.Errorf("fetching knowledge base %s: %v", kbUID.String(), err)
		return report
	}

	var fileUIDs []types.FileUIDType
	var err error
	if deleteFiles {
		fileUIDs, err = e.store.GetFileUIDsByKnowledgeBaseUID(ctx, kbUID)
		if err != nil {
			report.Errorf("resolving files of knowledge base %s: %v", kbUID.String(), err)
		}
	}

	// Vectors first: the whole collection goes at once, no filtered
	// deletions needed.
	e.dropCollection(ctx, constant.KBCollectionName(kbUID), report)

	// Models referencing the knowledge base keep working, they just lose the
	// dangling reference.
	detached, err := e.store.RemoveKnowledgeBaseFromModelDefs(ctx, kbUID)
	if err != nil {
		report.Errorf("detaching knowledge base %s from models: %v", kbUID.String(), err)
	} else {
		report.AddModelsDetached(detached)
	}

	counts, err := e.store.HardDeleteKnowledgeBase(ctx, kbUID)
	if err != nil {
		report.Errorf("deleting knowledge base rows %s: %v", kbUID.String(), err)
		return report
	}
	report.AddRowCounts(counts)

	if deleteFiles && len(fileUIDs) > 0 {
		report.Merge(e.DeleteOrphanedFilesBatch(ctx, fileUIDs, false, processed))
	}

	return report
}

// DeleteUser purges an account. Knowledge bases and chats are only
// soft-deleted here, handing the heavy store cleanup to the reconciler; the
// user's memory collection and simple owned rows are removed directly. The
// credential and the user row go last so an interrupted purge can be
// retried.
func (e *Engine) DeleteUser(ctx context.Context, userUID types.UserUIDType) *Report {
	report := NewReport()

	if _, err := e.store.GetUserByUID(ctx, userUID); err != nil {
		if errors.Is(err, errorsx.ErrNotFound) {
			e.log.Warn("User already deleted, skipping purge", zap.String("user_uid", userUID.String()))
			return report
		}
		report.Errorf("fetching user %s: %v", userUID.String(), err)
		return report
	}

	owner := types.OwnerUIDType(userUID)

	// The memory vector collection and its rows.
	e.dropCollection(ctx, constant.MemoryCollectionName(userUID), report)
	e.deleteOwned(ctx, report, repository.MemoryModel{}.TableName(), owner, e.store.HardDeleteMemoriesByOwner)

	// Knowledge bases and chats are handed to the reconciler, which owns the
	// batched vector and storage cleanup.
	if n, err := e.store.SoftDeleteKnowledgeBasesByOwner(ctx, owner); err != nil {
		report.Errorf("soft-deleting knowledge bases of user %s: %v", userUID.String(), err)
	} else {
		report.AddSoftDeletedRows(repository.KnowledgeBaseModel{}.TableName(), n)
	}
	if n, err := e.store.SoftDeleteChatsByOwner(ctx, owner); err != nil {
		report.Errorf("soft-deleting chats of user %s: %v", userUID.String(), err)
	} else {
		report.AddSoftDeletedRows(repository.ChatModel{}.TableName(), n)
	}

	// Simple owned rows. A failure in one table is recorded and must not
	// block the others.
	e.deleteOwned(ctx, report, repository.MessageModel{}.TableName(), owner, e.store.HardDeleteMessagesByOwner)
	e.deleteOwned(ctx, report, repository.TagModel{}.TableName(), owner, e.store.HardDeleteTagsByOwner)
	e.deleteOwned(ctx, report, repository.FolderModel{}.TableName(), owner, e.store.HardDeleteFoldersByOwner)
	e.deleteOwned(ctx, report, repository.PromptModel{}.TableName(), owner, e.store.HardDeletePromptsByOwner)
	e.deleteOwned(ctx, report, repository.ToolModel{}.TableName(), owner, e.store.HardDeleteToolsByOwner)
	e.deleteOwned(ctx, report, repository.FunctionModel{}.TableName(), owner, e.store.HardDeleteFunctionsByOwner)
	e.deleteOwned(ctx, report, repository.ModelDefModel{}.TableName(), owner, e.store.HardDeleteModelDefsByOwner)
	e.deleteOwned(ctx, report, repository.FeedbackModel{}.TableName(), owner, e.store.HardDeleteFeedbackByOwner)
	e.deleteOwned(ctx, report, repository.NoteModel{}.TableName(), owner, e.store.HardDeleteNotesByOwner)

	e.deleteOwned(ctx, report, repository.ChannelMemberModel{}.TableName(), userUID, e.store.HardDeleteChannelMembersByUser)
	e.deleteOwned(ctx, report, repository.OAuthSessionModel{}.TableName(), userUID, e.store.HardDeleteOAuthSessionsByUser)
	e.deleteOwned(ctx, report, repository.GroupMemberModel{}.TableName(), userUID, e.store.HardDeleteGroupMembersByUser)

	// Credential and account row go last.
	e.deleteOwned(ctx, report, repository.AuthModel{}.TableName(), userUID, e.store.HardDeleteAuthByUserUID)
	e.deleteOwned(ctx, report, repository.UserModel{}.TableName(), userUID, e.store.HardDeleteUser)

	return report
}

func (e *Engine) deleteOwned(ctx context.Context, report *Report, table string, uid types.OwnerUIDType, fn func(context.Context, types.OwnerUIDType) (int64, error)) {
	n, err := fn(ctx, uid)
	if err != nil {
		report.Errorf("deleting %s rows: %v", table, err)
		return
	}
	report.AddRows(table, n)
}

// dropCollection drops a vector collection if it exists and records the
// outcome.
func (e *Engine) dropCollection(ctx context.Context, collection string, report *Report) {
	exists, err := e.vector.CollectionExists(ctx, collection)
	if err != nil {
		report.Errorf("checking collection %s: %v", collection, err)
		return
	}
	if !exists {
		return
	}
	if err := e.vector.DropCollection(ctx, collection); err != nil {
		report.Errorf("dropping collection %s: %v", collection, err)
		return
	}
	report.IncCollectionsDropped()
}
