package repository

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/converso-ai/chat-backend/pkg/types"
)

func newTestModelDef(owner types.OwnerUIDType) ModelDefModel {
	return ModelDefModel{
		UID:       newUID(),
		Owner:     owner,
		Name:      "assistant",
		BaseModel: "base-7b",
	}
}

func TestRemoveKnowledgeBaseFromModelDefs(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepository(c)
	owner := newUID()

	kb, err := repo.CreateKnowledgeBase(ctx, newTestKnowledgeBase(owner, "kb-1"))
	c.Assert(err, qt.IsNil)
	other, err := repo.CreateKnowledgeBase(ctx, newTestKnowledgeBase(owner, "kb-2"))
	c.Assert(err, qt.IsNil)

	both, err := repo.CreateModelDef(ctx, newTestModelDef(owner))
	c.Assert(err, qt.IsNil)
	single, err := repo.CreateModelDef(ctx, newTestModelDef(owner))
	c.Assert(err, qt.IsNil)
	unrelated, err := repo.CreateModelDef(ctx, newTestModelDef(owner))
	c.Assert(err, qt.IsNil)

	c.Assert(repo.LinkKnowledgeBaseToModelDef(ctx, both.UID, kb.UID), qt.IsNil)
	c.Assert(repo.LinkKnowledgeBaseToModelDef(ctx, both.UID, other.UID), qt.IsNil)
	c.Assert(repo.LinkKnowledgeBaseToModelDef(ctx, single.UID, kb.UID), qt.IsNil)
	c.Assert(repo.LinkKnowledgeBaseToModelDef(ctx, unrelated.UID, other.UID), qt.IsNil)

	defs, err := repo.ListModelDefsByKnowledgeBaseUID(ctx, kb.UID)
	c.Assert(err, qt.IsNil)
	c.Check(defs, qt.HasLen, 2)

	n, err := repo.RemoveKnowledgeBaseFromModelDefs(ctx, kb.UID)
	c.Assert(err, qt.IsNil)
	c.Check(n, qt.Equals, int64(2))

	defs, err = repo.ListModelDefsByKnowledgeBaseUID(ctx, kb.UID)
	c.Assert(err, qt.IsNil)
	c.Check(defs, qt.HasLen, 0)

	// References to other knowledge bases survive the strip.
	defs, err = repo.ListModelDefsByKnowledgeBaseUID(ctx, other.UID)
	c.Assert(err, qt.IsNil)
	c.Check(defs, qt.HasLen, 2)

	// Idempotent.
	n, err = repo.RemoveKnowledgeBaseFromModelDefs(ctx, kb.UID)
	c.Assert(err, qt.IsNil)
	c.Check(n, qt.Equals, int64(0))
}

func TestHardDeleteModelDefsByOwner(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	repo := newTestRepository(c)
	owner := newUID()

	kb, err := repo.CreateKnowledgeBase(ctx, newTestKnowledgeBase(owner, "kb-1"))
	c.Assert(err, qt.IsNil)
	def, err := repo.CreateModelDef(ctx, newTestModelDef(owner))
	c.Assert(err, qt.IsNil)
	c.Assert(repo.LinkKnowledgeBaseToModelDef(ctx, def.UID, kb.UID), qt.IsNil)

	// A definition of another owner must survive the purge.
	keptOwner := newUID()
	kept, err := repo.CreateModelDef(ctx, newTestModelDef(keptOwner))
	c.Assert(err, qt.IsNil)
	c.Assert(repo.LinkKnowledgeBaseToModelDef(ctx, kept.UID, kb.UID), qt.IsNil)

	n, err := repo.HardDeleteModelDefsByOwner(ctx, owner)
	c.Assert(err, qt.IsNil)
	c.Check(n, qt.Equals, int64(1))

	// The junction rows of the purged definitions go with them.
	defs, err := repo.ListModelDefsByKnowledgeBaseUID(ctx, kb.UID)
	c.Assert(err, qt.IsNil)
	c.Assert(defs, qt.HasLen, 1)
	c.Check(defs[0].UID, qt.Equals, kept.UID)
}
