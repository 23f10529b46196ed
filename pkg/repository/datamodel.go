package repository

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

// UserModel is the account that owns every other entity.
type UserModel struct {
	UID        uuid.UUID  `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Name       string     `gorm:"column:name;size:255;not null" json:"name"`
	Email      string     `gorm:"column:email;size:255;not null" json:"email"`
	Role       string     `gorm:"column:role;size:255;not null;default:user" json:"role"`
	CreateTime *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
	UpdateTime *time.Time `gorm:"column:update_time;not null;autoUpdateTime" json:"update_time"`
}

func (UserModel) TableName() string { return "user" }

// AuthModel is the login credential of a user. It is removed last during an
// account purge so a failed purge can be retried by the owner.
type AuthModel struct {
	UserUID      uuid.UUID `gorm:"column:user_uid;type:uuid;primaryKey" json:"user_uid"`
	Email        string    `gorm:"column:email;size:255;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"password_hash"`
	Active       bool      `gorm:"column:active;not null;default:true" json:"active"`
}

func (AuthModel) TableName() string { return "auth" }

// KnowledgeBaseModel holds a collection of files with a dedicated vector
// collection. A non-NULL DeleteTime marks the knowledge base as soft-deleted
// and eligible for reconciliation; the row itself is the only durable marker
// of pending cleanup work.
type KnowledgeBaseModel struct {
	UID         uuid.UUID  `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	KbID        string     `gorm:"column:id;size:255;not null" json:"kb_id"`
	Name        string     `gorm:"column:name;size:255;not null" json:"name"`
	Description string     `gorm:"column:description;size:1023" json:"description"`
	Tags        TagsArray  `gorm:"column:tags;type:VARCHAR(255)[]" json:"tags"`
	Owner       uuid.UUID  `gorm:"column:owner;type:uuid;not null" json:"owner"`
	CreatorUID  uuid.UUID  `gorm:"column:creator_uid;type:uuid;not null" json:"creator_uid"`
	CreateTime  *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
	UpdateTime  *time.Time `gorm:"column:update_time;not null;autoUpdateTime" json:"update_time"`
	DeleteTime  *time.Time `gorm:"column:delete_time" json:"delete_time"`
}

func (KnowledgeBaseModel) TableName() string { return "knowledge_base" }

// table columns map
type KnowledgeBaseColumns struct {
	UID        string
	KbID       string
	Name       string
	Owner      string
	CreateTime string
	UpdateTime string
	DeleteTime string
}

var KnowledgeBaseColumn = KnowledgeBaseColumns{
	UID:        "uid",
	KbID:       "id",
	Name:       "name",
	Owner:      "owner",
	CreateTime: "create_time",
	UpdateTime: "update_time",
	DeleteTime: "delete_time",
}

// ChatModel is a conversation. Soft deletion works the same way as for
// knowledge bases.
type ChatModel struct {
	UID        uuid.UUID  `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner      uuid.UUID  `gorm:"column:owner;type:uuid;not null" json:"owner"`
	Title      string     `gorm:"column:title;size:1023;not null" json:"title"`
	Archived   bool       `gorm:"column:archived;not null;default:false" json:"archived"`
	Pinned     bool       `gorm:"column:pinned;not null;default:false" json:"pinned"`
	CreateTime *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
	UpdateTime *time.Time `gorm:"column:update_time;not null;autoUpdateTime" json:"update_time"`
	DeleteTime *time.Time `gorm:"column:delete_time" json:"delete_time"`
}

func (ChatModel) TableName() string { return "chat" }

// table columns map
type ChatColumns struct {
	UID        string
	Owner      string
	Title      string
	DeleteTime string
}

var ChatColumn = ChatColumns{
	UID:        "uid",
	Owner:      "owner",
	Title:      "title",
	DeleteTime: "delete_time",
}

// FileModel is an uploaded document. Destination is the object storage path
// of the original blob (may be empty for externally-sourced files).
// ContentHash deduplicates identical uploads and doubles as a vector
// deletion filter.
type FileModel struct {
	UID         uuid.UUID  `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner       uuid.UUID  `gorm:"column:owner;type:uuid;not null" json:"owner"`
	Name        string     `gorm:"column:name;size:255;not null" json:"name"`
	Type        string     `gorm:"column:type;size:100;not null" json:"type"`
	Destination string     `gorm:"column:destination;size:255" json:"destination"`
	ContentHash string     `gorm:"column:content_hash;size:255" json:"content_hash"`
	Size        int64      `gorm:"column:size;not null;default:0" json:"size"`
	CreateTime  *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
	UpdateTime  *time.Time `gorm:"column:update_time;not null;autoUpdateTime" json:"update_time"`
}

func (FileModel) TableName() string { return "file" }

// table columns map
type FileColumns struct {
	UID         string
	Owner       string
	Destination string
	ContentHash string
}

var FileColumn = FileColumns{
	UID:         "uid",
	Owner:       "owner",
	Destination: "destination",
	ContentHash: "content_hash",
}

// KnowledgeBaseFileModel is the knowledge base / file junction. Rows must
// disappear in the same transaction as their parent knowledge base row; the
// reference resolver's correctness depends on it.
type KnowledgeBaseFileModel struct {
	KbUID      uuid.UUID  `gorm:"column:kb_uid;type:uuid;primaryKey" json:"kb_uid"`
	FileUID    uuid.UUID  `gorm:"column:file_uid;type:uuid;primaryKey" json:"file_uid"`
	CreateTime *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
}

func (KnowledgeBaseFileModel) TableName() string { return "knowledge_base_file" }

// ChatFileModel is the chat / file junction.
type ChatFileModel struct {
	ChatUID    uuid.UUID  `gorm:"column:chat_uid;type:uuid;primaryKey" json:"chat_uid"`
	FileUID    uuid.UUID  `gorm:"column:file_uid;type:uuid;primaryKey" json:"file_uid"`
	CreateTime *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
}

func (ChatFileModel) TableName() string { return "chat_file" }

// TagModel labels chats. A tag is removed when the live chat count using it
// drops to zero.
type TagModel struct {
	UID   uuid.UUID `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner uuid.UUID `gorm:"column:owner;type:uuid;not null" json:"owner"`
	Name  string    `gorm:"column:name;size:255;not null" json:"name"`
}

func (TagModel) TableName() string { return "tag" }

// ChatTagModel is the chat / tag junction.
type ChatTagModel struct {
	ChatUID uuid.UUID `gorm:"column:chat_uid;type:uuid;primaryKey" json:"chat_uid"`
	TagUID  uuid.UUID `gorm:"column:tag_uid;type:uuid;primaryKey" json:"tag_uid"`
}

func (ChatTagModel) TableName() string { return "chat_tag" }

// ModelDefModel is a user-defined model configuration. Its attached
// knowledge bases live in the model_def_knowledge junction, a typed,
// always-present (possibly empty) set; a deleted knowledge base must be
// stripped from it so no model is left with a dangling reference.
type ModelDefModel struct {
	UID        uuid.UUID  `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner      uuid.UUID  `gorm:"column:owner;type:uuid;not null" json:"owner"`
	Name       string     `gorm:"column:name;size:255;not null" json:"name"`
	BaseModel  string     `gorm:"column:base_model;size:255;not null" json:"base_model"`
	CreateTime *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
	UpdateTime *time.Time `gorm:"column:update_time;not null;autoUpdateTime" json:"update_time"`
}

func (ModelDefModel) TableName() string { return "model_def" }

// ModelDefKnowledgeModel is the model definition / knowledge base junction.
type ModelDefKnowledgeModel struct {
	ModelDefUID uuid.UUID `gorm:"column:model_def_uid;type:uuid;primaryKey" json:"model_def_uid"`
	KbUID       uuid.UUID `gorm:"column:kb_uid;type:uuid;primaryKey" json:"kb_uid"`
}

func (ModelDefKnowledgeModel) TableName() string { return "model_def_knowledge" }

// MemoryModel is a user memory row; its vectors live in the user's memory
// collection.
type MemoryModel struct {
	UID        uuid.UUID  `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner      uuid.UUID  `gorm:"column:owner;type:uuid;not null" json:"owner"`
	Content    string     `gorm:"column:content;not null" json:"content"`
	CreateTime *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
}

func (MemoryModel) TableName() string { return "memory" }

// Simple user-owned rows purged during an account deletion. They carry no
// cross-store resources, so a plain batched row delete suffices.

type MessageModel struct {
	UID        uuid.UUID  `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner      uuid.UUID  `gorm:"column:owner;type:uuid;not null" json:"owner"`
	ChatUID    uuid.UUID  `gorm:"column:chat_uid;type:uuid" json:"chat_uid"`
	Role       string     `gorm:"column:role;size:100;not null" json:"role"`
	Content    string     `gorm:"column:content;not null" json:"content"`
	CreateTime *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
}

func (MessageModel) TableName() string { return "message" }

type ChannelMemberModel struct {
	ChannelUID uuid.UUID `gorm:"column:channel_uid;type:uuid;primaryKey" json:"channel_uid"`
	UserUID    uuid.UUID `gorm:"column:user_uid;type:uuid;primaryKey" json:"user_uid"`
}

func (ChannelMemberModel) TableName() string { return "channel_member" }

type FolderModel struct {
	UID       uuid.UUID `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner     uuid.UUID `gorm:"column:owner;type:uuid;not null" json:"owner"`
	Name      string    `gorm:"column:name;size:255;not null" json:"name"`
	ParentUID uuid.UUID `gorm:"column:parent_uid;type:uuid" json:"parent_uid"`
}

func (FolderModel) TableName() string { return "folder" }

type PromptModel struct {
	UID     uuid.UUID `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner   uuid.UUID `gorm:"column:owner;type:uuid;not null" json:"owner"`
	Command string    `gorm:"column:command;size:255;not null" json:"command"`
	Title   string    `gorm:"column:title;size:255" json:"title"`
	Content string    `gorm:"column:content" json:"content"`
}

func (PromptModel) TableName() string { return "prompt" }

type ToolModel struct {
	UID   uuid.UUID `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner uuid.UUID `gorm:"column:owner;type:uuid;not null" json:"owner"`
	Name  string    `gorm:"column:name;size:255;not null" json:"name"`
	Spec  string    `gorm:"column:spec" json:"spec"`
}

func (ToolModel) TableName() string { return "tool" }

type FunctionModel struct {
	UID   uuid.UUID `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner uuid.UUID `gorm:"column:owner;type:uuid;not null" json:"owner"`
	Name  string    `gorm:"column:name;size:255;not null" json:"name"`
	Code  string    `gorm:"column:code" json:"code"`
}

func (FunctionModel) TableName() string { return "function" }

type FeedbackModel struct {
	UID        uuid.UUID  `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner      uuid.UUID  `gorm:"column:owner;type:uuid;not null" json:"owner"`
	Rating     int        `gorm:"column:rating;not null" json:"rating"`
	Comment    string     `gorm:"column:comment" json:"comment"`
	CreateTime *time.Time `gorm:"column:create_time;not null;default:CURRENT_TIMESTAMP" json:"create_time"`
}

func (FeedbackModel) TableName() string { return "feedback" }

type NoteModel struct {
	UID     uuid.UUID `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	Owner   uuid.UUID `gorm:"column:owner;type:uuid;not null" json:"owner"`
	Title   string    `gorm:"column:title;size:255" json:"title"`
	Content string    `gorm:"column:content" json:"content"`
}

func (NoteModel) TableName() string { return "note" }

type OAuthSessionModel struct {
	UID      uuid.UUID `gorm:"column:uid;type:uuid;primaryKey" json:"uid"`
	UserUID  uuid.UUID `gorm:"column:user_uid;type:uuid;not null" json:"user_uid"`
	Provider string    `gorm:"column:provider;size:255;not null" json:"provider"`
	Token    string    `gorm:"column:token;not null" json:"token"`
}

func (OAuthSessionModel) TableName() string { return "oauth_session" }

type GroupMemberModel struct {
	GroupUID uuid.UUID `gorm:"column:group_uid;type:uuid;primaryKey" json:"group_uid"`
	UserUID  uuid.UUID `gorm:"column:user_uid;type:uuid;primaryKey" json:"user_uid"`
}

func (GroupMemberModel) TableName() string { return "group_member" }

// TagsArray is a custom type to handle PostgreSQL VARCHAR(255)[] arrays.
type TagsArray []string

// Scan implements the Scanner interface for TagsArray.
func (tags *TagsArray) Scan(value interface{}) error {
	if value == nil {
		*tags = []string{}
		return nil
	}

	switch v := value.(type) {
	case string:
		*tags = parsePostgresArray(v)
	case []byte:
		*tags = parsePostgresArray(string(v))
	}
	return nil
}

// Value implements the driver Valuer interface for TagsArray.
func (tags TagsArray) Value() (driver.Value, error) {
	return formatPostgresArray(tags), nil
}

// Helper functions to parse and format PostgreSQL arrays.
func parsePostgresArray(s string) []string {
	trimmed := strings.Trim(s, "{}")
	if trimmed == "" {
		return []string{}
	}
	elements := strings.Split(trimmed, ",")
	for i := range elements {
		elements[i] = strings.Trim(elements[i], "\"")
	}
	return elements
}

func formatPostgresArray(tags []string) string {
	return "{" + strings.Join(tags, ",") + "}"
}
