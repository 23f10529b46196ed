package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	errorsx "github.com/converso-ai/chat-backend/pkg/errors"
	"github.com/converso-ai/chat-backend/pkg/repository"
	"github.com/converso-ai/chat-backend/pkg/types"
)

// callLog records store operations across the fakes in invocation order so
// tests can assert the vector -> storage -> database ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// firstIndex returns the position of the first call with the given prefix,
// or -1.
func (l *callLog) firstIndex(prefix string) int {
	for i, call := range l.snapshot() {
		if strings.HasPrefix(call, prefix) {
			return i
		}
	}
	return -1
}

// lastIndex returns the position of the last call with the given prefix, or
// -1.
func (l *callLog) lastIndex(prefix string) int {
	last := -1
	for i, call := range l.snapshot() {
		if strings.HasPrefix(call, prefix) {
			last = i
		}
	}
	return last
}

type fakeStore struct {
	mu  sync.Mutex
	log *callLog

	users map[types.UserUIDType]*repository.UserModel
	auth  map[types.UserUIDType]bool
	kbs   map[types.KBUIDType]*repository.KnowledgeBaseModel
	chats map[types.ChatUIDType]*repository.ChatModel
	files map[types.FileUIDType]*repository.FileModel
	tags  map[types.TagUIDType]bool

	kbFiles   map[types.KBUIDType][]types.FileUIDType
	chatFiles map[types.ChatUIDType][]types.FileUIDType
	chatTags  map[types.ChatUIDType][]types.TagUIDType
	modelKBs  map[types.ModelUIDType][]types.KBUIDType

	// Rows owned by a user, keyed by table name, consumed by the purge.
	ownedRows map[string]int64

	failHardDeleteFile bool
	failHardDeleteKB   bool
	failHardDeleteChat bool
}

func newFakeStore(log *callLog) *fakeStore {
	return &fakeStore{
		log:       log,
		users:     map[types.UserUIDType]*repository.UserModel{},
		auth:      map[types.UserUIDType]bool{},
		kbs:       map[types.KBUIDType]*repository.KnowledgeBaseModel{},
		chats:     map[types.ChatUIDType]*repository.ChatModel{},
		files:     map[types.FileUIDType]*repository.FileModel{},
		tags:      map[types.TagUIDType]bool{},
		kbFiles:   map[types.KBUIDType][]types.FileUIDType{},
		chatFiles: map[types.ChatUIDType][]types.FileUIDType{},
		chatTags:  map[types.ChatUIDType][]types.TagUIDType{},
		modelKBs:  map[types.ModelUIDType][]types.KBUIDType{},
		ownedRows: map[string]int64{},
	}
}

func notFound(kind string, uid fmt.Stringer) error {
	return fmt.Errorf("%s %s: %w", kind, uid.String(), errorsx.ErrNotFound)
}

func (s *fakeStore) GetKnowledgeBaseByUID(_ context.Context, kbUID types.KBUIDType) (*repository.KnowledgeBaseModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kb, ok := s.kbs[kbUID]
	if !ok {
		return nil, notFound("knowledge base", kbUID)
	}
	return kb, nil
}

func (s *fakeStore) SoftDeleteKnowledgeBasesByOwner(_ context.Context, owner types.OwnerUIDType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int64
	for _, kb := range s.kbs {
		if kb.Owner == owner && kb.DeleteTime == nil {
			t := now
			kb.DeleteTime = &t
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ListSoftDeletedKnowledgeBases(_ context.Context, limit int) ([]repository.KnowledgeBaseModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.KnowledgeBaseModel
	for _, kb := range s.kbs {
		if kb.DeleteTime != nil {
			out = append(out, *kb)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) HardDeleteKnowledgeBase(_ context.Context, kbUID types.KBUIDType) (map[string]int64, error) {
	s.log.add("db:hard_delete_kb:" + kbUID.String())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHardDeleteKB {
		return nil, fmt.Errorf("connection refused")
	}
	counts := map[string]int64{}
	if _, ok := s.kbs[kbUID]; ok {
		delete(s.kbs, kbUID)
		counts["knowledge_base"] = 1
	}
	counts["knowledge_base_file"] = int64(len(s.kbFiles[kbUID]))
	delete(s.kbFiles, kbUID)
	return counts, nil
}

func (s *fakeStore) GetFileUIDsByKnowledgeBaseUID(_ context.Context, kbUID types.KBUIDType) ([]types.FileUIDType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.FileUIDType(nil), s.kbFiles[kbUID]...), nil
}

func (s *fakeStore) GetKnowledgeBaseUIDsByFileUID(_ context.Context, fileUID types.FileUIDType) ([]types.KBUIDType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.KBUIDType
	for kbUID, fileUIDs := range s.kbFiles {
		for _, uid := range fileUIDs {
			if uid == fileUID {
				out = append(out, kbUID)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) GetChatByUID(_ context.Context, chatUID types.ChatUIDType) (*repository.ChatModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatUID]
	if !ok {
		return nil, notFound("chat", chatUID)
	}
	return chat, nil
}

func (s *fakeStore) SoftDeleteChatsByOwner(_ context.Context, owner types.OwnerUIDType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int64
	for _, chat := range s.chats {
		if chat.Owner == owner && chat.DeleteTime == nil {
			t := now
			chat.DeleteTime = &t
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ListSoftDeletedChats(_ context.Context, limit int) ([]repository.ChatModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.ChatModel
	for _, chat := range s.chats {
		if chat.DeleteTime != nil {
			out = append(out, *chat)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) HardDeleteChat(_ context.Context, chatUID types.ChatUIDType) (map[string]int64, error) {
	s.log.add("db:hard_delete_chat:" + chatUID.String())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHardDeleteChat {
		return nil, fmt.Errorf("connection refused")
	}
	counts := map[string]int64{}
	if _, ok := s.chats[chatUID]; ok {
		delete(s.chats, chatUID)
		counts["chat"] = 1
	}
	counts["chat_file"] = int64(len(s.chatFiles[chatUID]))
	counts["chat_tag"] = int64(len(s.chatTags[chatUID]))
	delete(s.chatFiles, chatUID)
	delete(s.chatTags, chatUID)
	return counts, nil
}

func (s *fakeStore) GetFileUIDsByChatUID(_ context.Context, chatUID types.ChatUIDType) ([]types.FileUIDType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.FileUIDType(nil), s.chatFiles[chatUID]...), nil
}

func (s *fakeStore) GetTagUIDsByChatUID(_ context.Context, chatUID types.ChatUIDType) ([]types.TagUIDType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.TagUIDType(nil), s.chatTags[chatUID]...), nil
}

func (s *fakeStore) GetFileByUID(_ context.Context, fileUID types.FileUIDType) (*repository.FileModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[fileUID]
	if !ok {
		return nil, notFound("file", fileUID)
	}
	return file, nil
}

func (s *fakeStore) GetFilesByUIDs(_ context.Context, fileUIDs []types.FileUIDType) ([]repository.FileModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.FileModel
	for _, uid := range fileUIDs {
		if file, ok := s.files[uid]; ok {
			out = append(out, *file)
		}
	}
	return out, nil
}

func (s *fakeStore) GetReferencedFileUIDs(_ context.Context, candidates []types.FileUIDType) (map[types.FileUIDType]struct{}, error) {
	s.log.add("db:get_referenced_files")
	s.mu.Lock()
	defer s.mu.Unlock()
	referenced := map[types.FileUIDType]struct{}{}
	for _, candidate := range candidates {
		for _, fileUIDs := range s.kbFiles {
			for _, uid := range fileUIDs {
				if uid == candidate {
					referenced[candidate] = struct{}{}
				}
			}
		}
		for _, fileUIDs := range s.chatFiles {
			for _, uid := range fileUIDs {
				if uid == candidate {
					referenced[candidate] = struct{}{}
				}
			}
		}
	}
	return referenced, nil
}

func (s *fakeStore) HardDeleteFile(ctx context.Context, fileUID types.FileUIDType) (map[string]int64, error) {
	return s.HardDeleteFiles(ctx, []types.FileUIDType{fileUID})
}

func (s *fakeStore) HardDeleteFiles(_ context.Context, fileUIDs []types.FileUIDType) (map[string]int64, error) {
	s.log.add("db:hard_delete_files")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHardDeleteFile {
		return nil, fmt.Errorf("connection refused")
	}
	counts := map[string]int64{}
	for _, fileUID := range fileUIDs {
		if _, ok := s.files[fileUID]; ok {
			delete(s.files, fileUID)
			counts["file"]++
		}
		for kbUID, uids := range s.kbFiles {
			s.kbFiles[kbUID] = removeUID(uids, fileUID, counts, "knowledge_base_file")
		}
		for chatUID, uids := range s.chatFiles {
			s.chatFiles[chatUID] = removeUID(uids, fileUID, counts, "chat_file")
		}
	}
	return counts, nil
}

func removeUID(uids []types.FileUIDType, target types.FileUIDType, counts map[string]int64, table string) []types.FileUIDType {
	out := uids[:0]
	for _, uid := range uids {
		if uid == target {
			counts[table]++
			continue
		}
		out = append(out, uid)
	}
	return out
}

func (s *fakeStore) CountLiveChatsByTagUID(_ context.Context, tagUID types.TagUIDType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for chatUID, tagUIDs := range s.chatTags {
		chat, ok := s.chats[chatUID]
		if !ok || chat.DeleteTime != nil {
			continue
		}
		for _, uid := range tagUIDs {
			if uid == tagUID {
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *fakeStore) DeleteTag(_ context.Context, tagUID types.TagUIDType) (int64, error) {
	s.log.add("db:delete_tag:" + tagUID.String())
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tags[tagUID] {
		return 0, nil
	}
	delete(s.tags, tagUID)
	return 1, nil
}

func (s *fakeStore) RemoveKnowledgeBaseFromModelDefs(_ context.Context, kbUID types.KBUIDType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for modelUID, kbUIDs := range s.modelKBs {
		filtered := kbUIDs[:0]
		removed := false
		for _, uid := range kbUIDs {
			if uid == kbUID {
				removed = true
				continue
			}
			filtered = append(filtered, uid)
		}
		if removed {
			s.modelKBs[modelUID] = filtered
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) GetUserByUID(_ context.Context, userUID types.UserUIDType) (*repository.UserModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userUID]
	if !ok {
		return nil, notFound("user", userUID)
	}
	return user, nil
}

func (s *fakeStore) deleteOwnedRows(table string) (int64, error) {
	s.log.add("db:delete_owned:" + table)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ownedRows[table]
	delete(s.ownedRows, table)
	return n, nil
}

func (s *fakeStore) HardDeleteMemoriesByOwner(_ context.Context, _ types.OwnerUIDType) (int64, error) {
	return s.deleteOwnedRows("memory")
}

func (s *fakeStore) HardDeleteMessagesByOwner(_ context.Context, _ types.OwnerUIDType) (int64, error) {
	return s.deleteOwnedRows("message")
}

func (s *fakeStore) HardDeleteChannelMembersByUser(_ context.Context, _ types.UserUIDType) (int64, error) {
	return s.deleteOwnedRows("channel_member")
}

func (s *fakeStore) HardDeleteTagsByOwner(_ context.Context, _ types.OwnerUIDType) (int64, error) {
	return s.deleteOwnedRows("tag")
}

func (s *fakeStore) HardDeleteFoldersByOwner(_ context.Context, _ types.OwnerUIDType) (int64, error) {
	return s.deleteOwnedRows("folder")
}

func (s *fakeStore) HardDeletePromptsByOwner(_ context.Context, _ types.OwnerUIDType) (int64, error) {
	return s.deleteOwnedRows("prompt")
}

func (s *fakeStore) HardDeleteToolsByOwner(_ context.Context, _ types.OwnerUIDType) (int64, error) {
	return s.deleteOwnedRows("tool")
}

func (s *fakeStore) HardDeleteFunctionsByOwner(_ context.Context, _ types.OwnerUIDType) (int64, error) {
	return s.deleteOwnedRows("function")
}

func (s *fakeStore) HardDeleteModelDefsByOwner(_ context.Context, _ types.OwnerUIDType) (int64, error) {
	return s.deleteOwnedRows("model_def")
}

func (s *fakeStore) HardDeleteFeedbackByOwner(_ context.Context, _ types.OwnerUIDType) (int64, error) {
	return s.deleteOwnedRows("feedback")
}

func (s *fakeStore) HardDeleteNotesByOwner(_ context.Context, _ types.OwnerUIDType) (int64, error) {
	return s.deleteOwnedRows("note")
}

func (s *fakeStore) HardDeleteOAuthSessionsByUser(_ context.Context, _ types.UserUIDType) (int64, error) {
	return s.deleteOwnedRows("oauth_session")
}

func (s *fakeStore) HardDeleteGroupMembersByUser(_ context.Context, _ types.UserUIDType) (int64, error) {
	return s.deleteOwnedRows("group_member")
}

func (s *fakeStore) HardDeleteAuthByUserUID(_ context.Context, userUID types.UserUIDType) (int64, error) {
	s.log.add("db:delete_auth")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.auth[userUID] {
		return 0, nil
	}
	delete(s.auth, userUID)
	return 1, nil
}

func (s *fakeStore) HardDeleteUser(_ context.Context, userUID types.UserUIDType) (int64, error) {
	s.log.add("db:delete_user")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userUID]; !ok {
		return 0, nil
	}
	delete(s.users, userUID)
	return 1, nil
}

// fakeVector implements repository.VectorDatabase over a collection set. It
// tracks the peak number of concurrent operations so tests can assert the
// pool's concurrency cap.
type fakeVector struct {
	mu  sync.Mutex
	log *callLog

	collections map[string]bool

	failDrop error
	opDelay  time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeVector(log *callLog, collections ...string) *fakeVector {
	v := &fakeVector{
		log:         log,
		collections: map[string]bool{},
	}
	for _, collection := range collections {
		v.collections[collection] = true
	}
	return v
}

func (v *fakeVector) enter() {
	active := v.active.Add(1)
	for {
		peak := v.maxActive.Load()
		if active <= peak || v.maxActive.CompareAndSwap(peak, active) {
			break
		}
	}
	if v.opDelay > 0 {
		time.Sleep(v.opDelay)
	}
}

func (v *fakeVector) leave() {
	v.active.Add(-1)
}

func (v *fakeVector) CollectionExists(_ context.Context, collectionID string) (bool, error) {
	v.enter()
	defer v.leave()
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.collections[collectionID], nil
}

func (v *fakeVector) CreateCollection(_ context.Context, collectionID string, _ uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.collections[collectionID] = true
	return nil
}

func (v *fakeVector) DropCollection(_ context.Context, collectionID string) error {
	v.enter()
	defer v.leave()
	v.log.add("vector:drop:" + collectionID)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failDrop != nil {
		return v.failDrop
	}
	delete(v.collections, collectionID)
	return nil
}

func (v *fakeVector) DeleteEmbeddingsWithFileUID(_ context.Context, collectionID string, fileUID types.FileUIDType) error {
	v.log.add("vector:delete_file_uid:" + collectionID + ":" + fileUID.String())
	return nil
}

func (v *fakeVector) DeleteEmbeddingsWithContentHash(_ context.Context, collectionID string, contentHash string) error {
	v.log.add("vector:delete_content_hash:" + collectionID + ":" + contentHash)
	return nil
}

func (v *fakeVector) has(collectionID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.collections[collectionID]
}

// fakeStorage implements object.Storage over a blob set.
type fakeStorage struct {
	mu  sync.Mutex
	log *callLog

	blobs map[string]bool

	failDelete error
}

func newFakeStorage(log *callLog, blobs ...string) *fakeStorage {
	s := &fakeStorage{
		log:   log,
		blobs: map[string]bool{},
	}
	for _, blob := range blobs {
		s.blobs[blob] = true
	}
	return s
}

func (s *fakeStorage) UploadBase64File(_ context.Context, filePathName, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[filePathName] = true
	return nil
}

func (s *fakeStorage) DeleteFile(_ context.Context, filePathName string) error {
	s.log.add("storage:delete:" + filePathName)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete != nil {
		return s.failDelete
	}
	delete(s.blobs, filePathName)
	return nil
}

func (s *fakeStorage) DeleteFiles(_ context.Context, filePathNames []string) (int64, error) {
	s.log.add("storage:delete_batch")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete != nil {
		return 0, s.failDelete
	}
	var n int64
	for _, path := range filePathNames {
		delete(s.blobs, path)
		n++
	}
	return n, nil
}

func (s *fakeStorage) has(filePathName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobs[filePathName]
}
