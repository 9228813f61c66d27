package model

// Content — закрытое множество типов содержимого сообщения.
// Новый тип содержимого обязан реализовать ContentType(), после чего
// компилятор укажет все switch-и, где его нужно обработать.
type Content interface {
	ContentType() MessageType
}

type TextContent struct {
	Text string `json:"text"`
}

func (TextContent) ContentType() MessageType { return TypeText }

// ReplyContent ссылается на другое сообщение беседы. Reference может
// указывать на временный id — при чтении он перенаправляется на
// постоянный через таблицу реконсиляции.
type ReplyContent struct {
	Reference string      `json:"reference"`
	Inner     TextContent `json:"inner"`
}

func (ReplyContent) ContentType() MessageType { return TypeReply }

type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
	ReactionUnknown ReactionAction = "unknown"
)

// ReactionContent — реакция на другое сообщение. Сама реакция в ленту
// не попадает: она сворачивается в индекс целевого сообщения.
type ReactionContent struct {
	Reference string         `json:"reference"`
	Action    ReactionAction `json:"action"`
	Schema    string         `json:"schema"`
	Content   string         `json:"content"`
}

func (ReactionContent) ContentType() MessageType { return TypeReaction }

type GroupUpdateContent struct {
	InitiatedBy    string   `json:"initiated_by"`
	AddedMembers   []string `json:"added_members,omitempty"`
	RemovedMembers []string `json:"removed_members,omitempty"`
	MetadataField  string   `json:"metadata_field,omitempty"`
	MetadataValue  string   `json:"metadata_value,omitempty"`
}

func (GroupUpdateContent) ContentType() MessageType { return TypeGroupUpdate }

type RemoteAttachmentContent struct {
	URL           string `json:"url"`
	Filename      string `json:"filename"`
	MimeType      string `json:"mime_type,omitempty"`
	ContentLength int64  `json:"content_length,omitempty"`
}

func (RemoteAttachmentContent) ContentType() MessageType { return TypeRemoteAttachment }

type StaticAttachmentContent struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data"`
}

func (StaticAttachmentContent) ContentType() MessageType { return TypeStaticAttachment }

type MultiRemoteAttachmentContent struct {
	Attachments []RemoteAttachmentContent `json:"attachments"`
}

func (MultiRemoteAttachmentContent) ContentType() MessageType { return TypeMultiRemoteAttachment }

// IsAttachment — вложения отправляются раньше текста при составной отправке.
func IsAttachment(c Content) bool {
	switch c.(type) {
	case RemoteAttachmentContent, StaticAttachmentContent, MultiRemoteAttachmentContent:
		return true
	case TextContent, ReplyContent, ReactionContent, GroupUpdateContent:
		return false
	}
	return false
}
