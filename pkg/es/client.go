// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"chatvault-go/internal/config"
	"chatvault-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端，并确保消息索引存在。
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return NewMessageIndex(client, esCfg.IndexName).EnsureIndex()
}

// messageMapping 是消息索引的结构。user_email 与 conversation_id 用于过滤，content 参与全文检索。
const messageMapping = `{
	"mappings": {
		"properties": {
			"message_id": { "type": "long" },
			"conversation_id": { "type": "keyword" },
			"user_email": { "type": "keyword" },
			"role": { "type": "keyword" },
			"content": { "type": "text" },
			"created_at": { "type": "date" }
		}
	}
}`

// EnsureIndex 检查索引是否存在，如果不存在则创建它
func (m *MessageIndex) EnsureIndex() error {
	res, err := m.client.Indices.Exists([]string{m.index})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", m.index)
		return nil
	}
	// 如果 res.StatusCode 是 404，说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", m.index, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	created, err := m.client.Indices.Create(
		m.index,
		m.client.Indices.Create.WithBody(strings.NewReader(messageMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", m.index, err)
		return err
	}
	defer created.Body.Close()
	if created.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", m.index, created.String())
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", created.Status())
	}

	log.Infof("索引 '%s' 创建成功", m.index)
	return nil
}
