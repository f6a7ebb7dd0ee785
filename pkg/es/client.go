// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"jurisai-go/internal/config"
	"jurisai-go/internal/model"
	"jurisai-go/pkg/log"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
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
	return createIndexIfNotExists(esCfg.IndexName)
}

// caseIndexMapping 使用 spanish 分析器，案件内容均为西班牙语。
const caseIndexMapping = `{
	"mappings": {
		"properties": {
			"case_id": { "type": "keyword" },
			"username": { "type": "keyword" },
			"title": { "type": "text", "analyzer": "spanish" },
			"preview": { "type": "text", "analyzer": "spanish" },
			"content": { "type": "text", "analyzer": "spanish" },
			"attachment_names": { "type": "text" },
			"message_count": { "type": "integer" },
			"updated_at": { "type": "date" }
		}
	}
}`

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(caseIndexMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexCase 以案件 ID 为文档 ID 写入（或覆盖）案件文档。
func IndexCase(ctx context.Context, indexName string, doc model.CaseDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: doc.CaseID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引案件到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index case")
	}
	return nil
}

// DeleteCase 删除案件文档。文档不存在视为成功。
func DeleteCase(ctx context.Context, indexName, caseID string) error {
	req := esapi.DeleteRequest{Index: indexName, DocumentID: caseID, Refresh: "true"}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to delete case document: %s", res.String())
	}
	return nil
}

// BuildCaseQuery 构造只在指定用户案件中检索的查询体。
func BuildCaseQuery(username, query string, size int) map[string]interface{} {
	return map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"title^3", "preview^2", "content", "attachment_names^2"},
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"username": username},
				},
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"content": map[string]interface{}{"fragment_size": 120, "number_of_fragments": 2},
			},
		},
		"_source": []string{"case_id", "title", "preview", "updated_at"},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score     float64             `json:"_score"`
			Source    model.CaseDocument  `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchCases 在用户的案件中进行全文检索。
func SearchCases(ctx context.Context, indexName, username, query string, size int) ([]model.CaseHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(BuildCaseQuery(username, query, size)); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search returned error: %s", res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]model.CaseHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, model.CaseHit{
			CaseID:    h.Source.CaseID,
			Title:     h.Source.Title,
			Preview:   h.Source.Preview,
			UpdatedAt: h.Source.UpdatedAt,
			Score:     h.Score,
			Highlight: h.Highlight["content"],
		})
	}
	return hits, nil
}

// CaseIndex 将全局客户端绑定到一个索引。
type CaseIndex struct {
	Name string
}

// Search 实现了 service.CaseSearcher。
func (i CaseIndex) Search(ctx context.Context, username, query string, size int) ([]model.CaseHit, error) {
	return SearchCases(ctx, i.Name, username, query, size)
}

// Index 实现了 pipeline.DocumentIndex。
func (i CaseIndex) Index(ctx context.Context, doc model.CaseDocument) error {
	return IndexCase(ctx, i.Name, doc)
}

// Delete 实现了 pipeline.DocumentIndex。
func (i CaseIndex) Delete(ctx context.Context, caseID string) error {
	return DeleteCase(ctx, i.Name, caseID)
}
