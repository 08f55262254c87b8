package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"chatvault-go/internal/model"
	"chatvault-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// MessageIndex 封装消息索引的写入与检索。
type MessageIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewMessageIndex 创建一个新的 MessageIndex。
func NewMessageIndex(client *elasticsearch.Client, index string) *MessageIndex {
	return &MessageIndex{client: client, index: index}
}

// Hit 是一条检索命中。
type Hit struct {
	Document model.MessageDocument
	Score    float64
}

// IndexMessage 写入或覆盖一条消息文档，文档 ID 为消息 ID。
func (m *MessageIndex) IndexMessage(ctx context.Context, doc model.MessageDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      m.index,
		DocumentID: strconv.FormatUint(uint64(doc.MessageID), 10),
		Body:       bytes.NewReader(docBytes),
	}

	res, err := req.Do(ctx, m.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引消息到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("failed to index message %d: %s", doc.MessageID, res.Status())
	}
	return nil
}

// BuildSearchQuery 构建按用户过滤的全文检索请求体。
func BuildSearchQuery(email, query string, size int) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{
						"content": map[string]interface{}{
							"query":    query,
							"operator": "and",
						},
					},
				},
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"user_email": email}},
				},
			},
		},
		"sort": []interface{}{"_score", map[string]interface{}{"created_at": "desc"}},
		"size": size,
	}
}

// Search 在 email 自己的消息中做全文检索。
func (m *MessageIndex) Search(ctx context.Context, email, query string, size int) ([]Hit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(BuildSearchQuery(email, query, size)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := m.client.Search(
		m.client.Search.WithContext(ctx),
		m.client.Search.WithIndex(m.index),
		m.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[ES] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.MessageDocument `json:"_source"`
				Score  float64               `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, Hit{Document: h.Source, Score: h.Score})
	}
	return hits, nil
}
