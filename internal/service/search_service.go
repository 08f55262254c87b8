package service

import (
	"context"
	"strings"

	"chatvault-go/internal/model"
	"chatvault-go/internal/repository"
	"chatvault-go/pkg/es"
	"chatvault-go/pkg/fulltext"
	"chatvault-go/pkg/log"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// MessageSearcher 在检索索引中查找消息，由 es.MessageIndex 实现。
type MessageSearcher interface {
	Search(ctx context.Context, email, query string, size int) ([]es.Hit, error)
}

// SearchService 接口定义了消息检索操作。
type SearchService interface {
	Search(ctx context.Context, email, query string, limit int) ([]model.SearchHit, error)
}

type searchService struct {
	repo     repository.ConversationRepository
	searcher MessageSearcher
}

// NewSearchService 创建一个新的 SearchService 实例。searcher 为 nil 时直接在数据库的检索投影上匹配。
func NewSearchService(repo repository.ConversationRepository, searcher MessageSearcher) SearchService {
	return &searchService{repo: repo, searcher: searcher}
}

// Search 检索用户自己的消息。隐藏会话或不属于用户的命中会被丢弃。
func (s *searchService) Search(ctx context.Context, email, query string, limit int) ([]model.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalid("q", "must not be empty")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	var hits []model.SearchHit
	var err error
	if s.searcher != nil {
		hits, err = s.searchIndex(ctx, email, query, limit)
	} else {
		hits, err = s.searchDatabase(ctx, email, query, limit)
	}
	if err != nil {
		return nil, err
	}
	return s.attachConversations(ctx, email, hits)
}

func (s *searchService) searchIndex(ctx context.Context, email, query string, limit int) ([]model.SearchHit, error) {
	found, err := s.searcher.Search(ctx, email, query, limit)
	if err != nil {
		log.Errorf("[SearchService] Elasticsearch 检索失败: %v", err)
		return nil, err
	}
	hits := make([]model.SearchHit, 0, len(found))
	for _, h := range found {
		hits = append(hits, model.SearchHit{
			ConversationID: h.Document.ConversationID,
			MessageID:      h.Document.MessageID,
			Role:           h.Document.Role,
			Content:        h.Document.Content,
			CreatedAt:      h.Document.CreatedAt,
			Score:          h.Score,
		})
	}
	return hits, nil
}

func (s *searchService) searchDatabase(ctx context.Context, email, query string, limit int) ([]model.SearchHit, error) {
	msgs, err := s.repo.SearchMessages(ctx, email, fulltext.Tokens(query), limit)
	if err != nil {
		return nil, err
	}
	hits := make([]model.SearchHit, 0, len(msgs))
	for _, m := range msgs {
		hits = append(hits, model.SearchHit{
			ConversationID: m.ConversationID,
			MessageID:      m.ID,
			Role:           m.Role,
			Content:        m.Content,
			CreatedAt:      m.CreatedAt,
		})
	}
	return hits, nil
}

// attachConversations 批量加载命中所属的会话，补充标题并过滤不可见的会话。
func (s *searchService) attachConversations(ctx context.Context, email string, hits []model.SearchHit) ([]model.SearchHit, error) {
	if len(hits) == 0 {
		return []model.SearchHit{}, nil
	}
	seen := make(map[string]struct{}, len(hits))
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.ConversationID]; !ok {
			seen[h.ConversationID] = struct{}{}
			ids = append(ids, h.ConversationID)
		}
	}
	convs, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(convs))
	for i := range convs {
		if convs[i].VisibleTo(email) {
			titles[convs[i].ID] = convs[i].Title
		}
	}

	out := make([]model.SearchHit, 0, len(hits))
	for _, h := range hits {
		title, ok := titles[h.ConversationID]
		if !ok {
			continue
		}
		h.ConversationTitle = title
		out = append(out, h)
	}
	return out, nil
}
