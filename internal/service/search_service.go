package service

import (
	"context"
	"regexp"
	"strings"

	"jurisai-go/internal/model"
	"jurisai-go/pkg/log"
)

// CaseSearcher 在索引中检索用户的案件。
type CaseSearcher interface {
	Search(ctx context.Context, username, query string, size int) ([]model.CaseHit, error)
}

// SearchService 接口定义了案件检索操作。
type SearchService interface {
	SearchCases(ctx context.Context, username, query string, size int) ([]model.CaseHit, error)
}

type searchService struct {
	searcher CaseSearcher
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(searcher CaseSearcher) SearchService {
	return &searchService{searcher: searcher}
}

const maxSearchSize = 50

// SearchCases 规范化查询后在用户自己的案件中检索。
func (s *searchService) SearchCases(ctx context.Context, username, query string, size int) ([]model.CaseHit, error) {
	normalized := normalizeQuery(query)
	if normalized == "" {
		return []model.CaseHit{}, nil
	}
	if size <= 0 || size > maxSearchSize {
		size = 10
	}
	log.Infof("[SearchService] 检索案件, user: %s, query: '%s' -> '%s'", username, query, normalized)
	hits, err := s.searcher.Search(ctx, username, normalized, size)
	if err != nil {
		log.Errorf("[SearchService] 检索失败: %v", err)
		return nil, err
	}
	return hits, nil
}

var (
	reKeep  = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	reSpace = regexp.MustCompile(`\s+`)
)

// normalizeQuery 去除标点与多余空白。
func normalizeQuery(q string) string {
	kept := reKeep.ReplaceAllString(strings.ToLower(q), " ")
	return strings.TrimSpace(reSpace.ReplaceAllString(kept, " "))
}
