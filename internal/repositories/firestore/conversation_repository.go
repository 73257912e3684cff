package firestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/designdesk/api/internal/domain"
	pfirestore "github.com/designdesk/api/internal/platform/firestore"
	"github.com/designdesk/api/internal/repositories"
)

const (
	conversationsCollection = "chats"
	messagesSubcollection   = "messages"
)

type conversationDocument struct {
	UserID     string    `firestore:"userId"`
	UserEmail  string    `firestore:"userEmail"`
	LastUpdate time.Time `firestore:"lastUpdate"`
}

type messageDocument struct {
	SenderID    string    `firestore:"senderId"`
	SenderEmail string    `firestore:"senderEmail"`
	Text        string    `firestore:"text"`
	FileURL     *string   `firestore:"fileUrl,omitempty"`
	FileName    *string   `firestore:"fileName,omitempty"`
	FileType    *string   `firestore:"fileType,omitempty"`
	Timestamp   time.Time `firestore:"timestamp"`
}

// ConversationRepository implements repositories.ConversationRepository backed by Firestore.
type ConversationRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[conversationDocument]
}

// NewConversationRepository constructs a Firestore-backed conversation repository.
func NewConversationRepository(provider *pfirestore.Provider) (*ConversationRepository, error) {
	if provider == nil {
		return nil, errors.New("conversation repository: firestore provider is required")
	}
	return &ConversationRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[conversationDocument](provider, conversationsCollection, nil, nil),
	}, nil
}

// Upsert creates or replaces the conversation header.
func (r *ConversationRepository) Upsert(ctx context.Context, conversation domain.Conversation) error {
	if r == nil || r.base == nil {
		return errors.New("conversation repository not initialised")
	}
	conversationID := strings.TrimSpace(conversation.ID)
	if conversationID == "" {
		return errors.New("conversation repository: conversation id is required")
	}
	_, err := r.base.Set(ctx, conversationID, conversationDocument{
		UserID:     conversation.UserID,
		UserEmail:  conversation.UserEmail,
		LastUpdate: conversation.LastUpdate.UTC(),
	})
	return err
}

// FindByID fetches a conversation header.
func (r *ConversationRepository) FindByID(ctx context.Context, conversationID string) (domain.Conversation, error) {
	if r == nil || r.base == nil {
		return domain.Conversation{}, errors.New("conversation repository not initialised")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return domain.Conversation{}, errors.New("conversation repository: conversation id is required")
	}
	doc, err := r.base.Get(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	return decodeConversationDocument(doc.ID, doc.Data), nil
}

// Touch bumps the conversation's last activity marker.
func (r *ConversationRepository) Touch(ctx context.Context, conversationID string, lastUpdate time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("conversation repository not initialised")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.New("conversation repository: conversation id is required")
	}
	_, err := r.base.Update(ctx, conversationID, []firestore.Update{
		{Path: "lastUpdate", Value: lastUpdate.UTC()},
	})
	return err
}

// List returns conversations ordered by last activity.
func (r *ConversationRepository) List(ctx context.Context, filter repositories.ConversationListFilter) (domain.CursorPage[domain.Conversation], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Conversation]{}, errors.New("conversation repository not initialised")
	}

	limit := filter.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.PageToken); token != "" {
		tokenTime, tokenID, err := decodeActivityToken(token)
		if err != nil {
			return domain.CursorPage[domain.Conversation]{}, fmt.Errorf("conversation repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, conversationQueryBuilder(filter.Sort, startAfter, fetchLimit))
	if err != nil {
		return domain.CursorPage[domain.Conversation]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeActivityToken(last.Data.LastUpdate, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Conversation, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeConversationDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Conversation]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Watch streams the live conversation list ordered by last activity.
func (r *ConversationRepository) Watch(ctx context.Context, filter repositories.ConversationListFilter) (repositories.Watcher[domain.Conversation], error) {
	if r == nil || r.base == nil {
		return nil, errors.New("conversation repository not initialised")
	}

	limit := filter.PageSize
	if limit < 0 {
		limit = 0
	}

	handle, err := r.base.Watch(ctx, conversationQueryBuilder(filter.Sort, nil, limit))
	if err != nil {
		return nil, err
	}
	return newDocumentWatcher(handle, decodeConversationDocument), nil
}

func conversationQueryBuilder(sort domain.SortOrder, startAfter []any, limit int) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		direction := firestore.Desc
		if sort == domain.SortAsc {
			direction = firestore.Asc
		}
		q = q.OrderBy("lastUpdate", direction).OrderBy(firestore.DocumentID, direction)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	}
}

func decodeConversationDocument(id string, doc conversationDocument) domain.Conversation {
	return domain.Conversation{
		ID:         id,
		UserID:     doc.UserID,
		UserEmail:  doc.UserEmail,
		LastUpdate: doc.LastUpdate,
	}
}

// MessageRepository implements repositories.MessageRepository on the messages
// subcollection beneath each conversation document.
type MessageRepository struct {
	provider *pfirestore.Provider
}

// NewMessageRepository constructs a Firestore-backed message repository.
func NewMessageRepository(provider *pfirestore.Provider) (*MessageRepository, error) {
	if provider == nil {
		return nil, errors.New("message repository: firestore provider is required")
	}
	return &MessageRepository{provider: provider}, nil
}

// Append stores a new message under the conversation. The message ID must be unique.
func (r *MessageRepository) Append(ctx context.Context, conversationID string, message domain.Message) error {
	if r == nil || r.provider == nil {
		return errors.New("message repository not initialised")
	}
	messageID := strings.TrimSpace(message.ID)
	if messageID == "" {
		return errors.New("message repository: message id is required")
	}
	coll, err := r.messages(ctx, conversationID)
	if err != nil {
		return err
	}

	doc := messageDocument{
		SenderID:    message.SenderID,
		SenderEmail: message.SenderEmail,
		Text:        message.Text,
		FileURL:     message.FileURL,
		FileName:    message.FileName,
		FileType:    message.FileType,
		Timestamp:   message.Timestamp.UTC(),
	}
	if _, err := coll.Doc(messageID).Create(ctx, doc); err != nil {
		return pfirestore.WrapError("messages.append", err)
	}
	return nil
}

// List returns messages in timestamp order.
func (r *MessageRepository) List(ctx context.Context, conversationID string, filter repositories.MessageListFilter) (domain.CursorPage[domain.Message], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Message]{}, errors.New("message repository not initialised")
	}
	coll, err := r.messages(ctx, conversationID)
	if err != nil {
		return domain.CursorPage[domain.Message]{}, err
	}

	limit := filter.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.PageToken); token != "" {
		tokenTime, tokenID, err := decodeActivityToken(token)
		if err != nil {
			return domain.CursorPage[domain.Message]{}, fmt.Errorf("message repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	query := messageQueryBuilder(filter.Sort, startAfter, fetchLimit)(coll.Query)

	iter := query.Documents(ctx)
	defer iter.Stop()

	type messageEntry struct {
		id  string
		doc messageDocument
	}
	var entries []messageEntry
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Message]{}, pfirestore.WrapError("messages.list", err)
		}
		var doc messageDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Message]{}, fmt.Errorf("message repository: decode %s: %w", snapshot.Ref.ID, err)
		}
		entries = append(entries, messageEntry{id: snapshot.Ref.ID, doc: doc})
	}

	nextToken := ""
	if limit > 0 && len(entries) == fetchLimit {
		last := entries[len(entries)-1]
		nextToken = encodeActivityToken(last.doc.Timestamp, last.id)
		entries = entries[:len(entries)-1]
	}

	items := make([]domain.Message, 0, len(entries))
	for _, entry := range entries {
		items = append(items, decodeMessageDocument(entry.id, entry.doc))
	}

	return domain.CursorPage[domain.Message]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Watch streams the live message feed for the conversation in ascending
// timestamp order.
func (r *MessageRepository) Watch(ctx context.Context, conversationID string) (repositories.Watcher[domain.Message], error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("message repository not initialised")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("message repository: conversation id is required")
	}

	base := pfirestore.NewBaseRepository[messageDocument](r.provider,
		conversationsCollection+"/"+conversationID+"/"+messagesSubcollection, nil, nil)

	handle, err := base.Watch(ctx, messageQueryBuilder(domain.SortAsc, nil, 0))
	if err != nil {
		return nil, err
	}
	return newDocumentWatcher(handle, decodeMessageDocument), nil
}

func (r *MessageRepository) messages(ctx context.Context, conversationID string) (*firestore.CollectionRef, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("message repository: conversation id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(conversationsCollection).Doc(conversationID).Collection(messagesSubcollection), nil
}

func messageQueryBuilder(sort domain.SortOrder, startAfter []any, limit int) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		direction := firestore.Asc
		if sort == domain.SortDesc {
			direction = firestore.Desc
		}
		q = q.OrderBy("timestamp", direction).OrderBy(firestore.DocumentID, direction)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	}
}

func decodeMessageDocument(id string, doc messageDocument) domain.Message {
	return domain.Message{
		ID:          id,
		SenderID:    doc.SenderID,
		SenderEmail: doc.SenderEmail,
		Text:        doc.Text,
		FileURL:     doc.FileURL,
		FileName:    doc.FileName,
		FileType:    doc.FileType,
		Timestamp:   doc.Timestamp,
	}
}

type activityToken struct {
	At time.Time `json:"t"`
	ID string    `json:"i"`
}

func encodeActivityToken(at time.Time, id string) string {
	payload, err := json.Marshal(activityToken{At: at.UTC(), ID: id})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(payload)
}

func decodeActivityToken(token string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	var decoded activityToken
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return time.Time{}, "", err
	}
	if decoded.ID == "" {
		return time.Time{}, "", errors.New("token missing document id")
	}
	return decoded.At, decoded.ID, nil
}
