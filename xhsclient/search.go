package xhsclient

import (
	"context"
	"fmt"
	"log"
	"time"

	"xhs_sign/headers"
)

const searchNotesPath = "/api/sns/web/v1/search/notes"

type searchPayload struct {
	ExtFlags     []string `json:"ext_flags"`
	ImageFormats []string `json:"image_formats"`
	Keyword      string   `json:"keyword"`
	NoteType     int      `json:"note_type"`
	Page         int      `json:"page"`
	PageSize     int      `json:"page_size"`
	SearchID     string   `json:"search_id"`
	Sort         string   `json:"sort"`
}

// Search 按关键词翻页搜索笔记
type Search struct {
	c       *Client
	keyword string
	started time.Time
	page    int
	hasMore bool
}

// NewSearch 创建搜索会话
func (c *Client) NewSearch(keyword string) *Search {
	return &Search{c: c, keyword: keyword, started: c.now(), page: 1, hasMore: true}
}

// HasMore 是否还有下一页
func (s *Search) HasMore() bool { return s.hasMore }

// Page 下一次请求的页码
func (s *Search) Page() int { return s.page }

// More 拉下一页；没有更多结果时返回空切片
func (s *Search) More(ctx context.Context) ([]Post, error) {
	if !s.hasMore {
		log.Printf("[xhs] search %q: no more results after page %d", s.keyword, s.page-1)
		return []Post{}, nil
	}
	payload := searchPayload{
		ExtFlags:     []string{},
		ImageFormats: imageFormats,
		Keyword:      s.keyword,
		Page:         s.page,
		PageSize:     20,
		SearchID:     headers.MakeSearchID(s.c.now().UnixMilli()),
		Sort:         "general",
	}
	var data struct {
		HasMore bool       `json:"has_more"`
		Items   *[]apiNote `json:"items"`
	}
	if err := s.c.postSigned(ctx, searchNotesPath, payload, s.started, &data); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if data.Items == nil {
		s.hasMore = false
		return []Post{}, nil
	}

	posts := make([]Post, 0, len(*data.Items))
	for _, it := range *data.Items {
		if it.ModelType != "note" {
			continue
		}
		posts = append(posts, it.post())
	}
	s.hasMore = data.HasMore
	s.page++
	return posts, nil
}
