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

	"talktofolder-go/internal/config"
	"talktofolder-go/internal/model"
	"talktofolder-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端并确保分块索引存在。
// dims 是向量维度，必须与 Embedding 模型的输出一致。
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
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
	return createIndexIfNotExists(esCfg.IndexName, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它。
func createIndexIfNotExists(indexName string, dims int) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// user_id 承担命名空间职责，所有元数据字段均为 keyword 以支持精确过滤
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"file_id": { "type": "keyword" },
				"file_name": { "type": "keyword" },
				"folder_id": { "type": "keyword" },
				"folder_name": { "type": "keyword" },
				"user_id": { "type": "keyword" },
				"mime_type": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"chunk_text": { "type": "text" },
				"start_index": { "type": "integer" },
				"end_index": { "type": "integer" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// Store 定义了向量索引的底层操作，由 service 层消费。
// 抽成接口是为了让上层逻辑可以在测试中替换实现。
type Store interface {
	// BulkUpsert 按文档自带的 ChunkID 批量覆盖写入。
	BulkUpsert(ctx context.Context, docs []model.EsChunk) error
	// KnnSearch 在 userID 范围内做近邻检索，folderID 非空时附加文件夹过滤。
	KnnSearch(ctx context.Context, vector []float32, userID, folderID string, topK int) ([]model.SearchResult, error)
	// DeleteByTerms 按 term 条件删除，条件中必须包含 user_id。
	DeleteByTerms(ctx context.Context, terms map[string]string) error
}

type esStore struct {
	client    *elasticsearch.Client
	indexName string
}

// NewStore 创建一个基于 Elasticsearch 的 Store 实例。
func NewStore(client *elasticsearch.Client, indexName string) Store {
	return &esStore{client: client, indexName: indexName}
}

// BulkUpsert 将分块文档批量写入索引，同 ID 覆盖旧文档（幂等重建）。
func (s *esStore) BulkUpsert(ctx context.Context, docs []model.EsChunk) error {
	if len(docs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		meta := map[string]map[string]string{
			"index": {"_id": doc.ChunkID},
		}
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to marshal bulk action: %w", err)
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk document: %w", err)
		}
		buf.Write(metaBytes)
		buf.WriteByte('\n')
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	res, err := s.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithIndex(s.indexName),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("bulk upsert failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("批量写入 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to bulk upsert chunk documents")
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		return errors.New("bulk upsert reported item-level errors")
	}
	return nil
}

// KnnSearch 执行余弦近邻检索并返回按得分降序的结果。
func (s *esStore) KnnSearch(ctx context.Context, vector []float32, userID, folderID string, topK int) ([]model.SearchResult, error) {
	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"user_id": userID}},
	}
	if folderID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"folder_id": folderID},
		})
	}

	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": topK * 10,
			"filter": map[string]interface{}{
				"bool": map[string]interface{}{"must": filters},
			},
		},
		"size": topK,
		"_source": map[string]interface{}{
			"excludes": []string{"vector"},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("Elasticsearch 检索返回错误: %s", res.String())
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string        `json:"_id"`
				Score  float64       `json:"_score"`
				Source model.EsChunk `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.SearchResult, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.SearchResult{
			ID:       hit.ID,
			Score:    hit.Score,
			Metadata: hit.Source,
		})
	}
	return results, nil
}

// DeleteByTerms 按 term 条件批量删除文档。
func (s *esStore) DeleteByTerms(ctx context.Context, terms map[string]string) error {
	if _, ok := terms["user_id"]; !ok {
		return errors.New("delete query must be scoped to a user_id")
	}

	var must []map[string]interface{}
	for field, value := range terms {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{field: value},
		})
	}
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("failed to encode delete query: %w", err)
	}

	res, err := s.client.DeleteByQuery(
		[]string{s.indexName},
		&buf,
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("delete by query failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("按条件删除 Elasticsearch 文档出错: %s", res.String())
		return errors.New("failed to delete chunk documents")
	}
	return nil
}
