package xhsclient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const homefeedPath = "/api/sns/web/v1/homefeed"

// ErrNotInitialized 调 More 之前必须先 Init
var ErrNotInitialized = errors.New("feed not initialized")

// Post 列表页一条笔记的元信息
type Post struct {
	ID            string `json:"id"`
	XsecToken     string `json:"xsec_token"`
	Title         string `json:"title"`
	CoverURL      string `json:"cover_median_url"`
	UserID        string `json:"user_id"`
	UserName      string `json:"user_name"`
	UserXsecToken string `json:"user_xsec_token"`
}

// apiNote 接口返回的笔记条目（snake_case）
type apiNote struct {
	ID        string `json:"id"`
	ModelType string `json:"model_type"`
	XsecToken string `json:"xsec_token"`
	NoteCard  struct {
		DisplayTitle string `json:"display_title"`
		Cover        struct {
			URLDefault string `json:"url_default"`
		} `json:"cover"`
		User struct {
			UserID    string `json:"user_id"`
			NickName  string `json:"nick_name"`
			XsecToken string `json:"xsec_token"`
		} `json:"user"`
	} `json:"note_card"`
}

func (n apiNote) post() Post {
	return Post{
		ID:            n.ID,
		XsecToken:     n.XsecToken,
		Title:         n.NoteCard.DisplayTitle,
		CoverURL:      n.NoteCard.Cover.URLDefault,
		UserID:        n.NoteCard.User.UserID,
		UserName:      n.NoteCard.User.NickName,
		UserXsecToken: n.NoteCard.User.XsecToken,
	}
}

// homefeedPayload 字段顺序与网页端一致
type homefeedPayload struct {
	Category          string   `json:"category"`
	CursorScore       string   `json:"cursor_score"`
	ImageFormats      []string `json:"image_formats"`
	NeedNum           int      `json:"need_num"`
	NoteIndex         int      `json:"note_index"`
	Num               int      `json:"num"`
	RefreshType       int      `json:"refresh_type"`
	SearchKey         string   `json:"search_key"`
	UnreadBeginNoteID string   `json:"unread_begin_note_id"`
	UnreadEndNoteID   string   `json:"unread_end_note_id"`
	UnreadNoteCount   int      `json:"unread_note_count"`
	NeedFilterImage   bool     `json:"need_filter_image"`
}

var imageFormats = []string{"jpg", "webp", "avif"}

// Feed 首页推荐流，一个 Feed 对应网页上的一次浏览
type Feed struct {
	c           *Client
	started     time.Time
	noteIndex   int
	refreshType int
	cursorScore string
}

// NewFeed 创建推荐流会话
func (c *Client) NewFeed() *Feed {
	return &Feed{c: c, refreshType: 1}
}

// Init 打开 explore 页，读取页面内嵌的第一屏笔记
func (f *Feed) Init(ctx context.Context) ([]Post, error) {
	page, err := f.c.getPage(ctx, f.c.webBase+"/explore")
	if err != nil {
		return nil, err
	}
	f.started = f.c.now()
	state, err := ExtractInitialState(page)
	if err != nil {
		return nil, err
	}
	feeds, _ := path(state, "feed", "feeds").([]any)
	posts := make([]Post, 0, len(feeds))
	for _, item := range feeds {
		posts = append(posts, Post{
			ID:            str(item, "id"),
			XsecToken:     str(item, "xsecToken"),
			Title:         str(item, "noteCard", "displayTitle"),
			CoverURL:      str(item, "noteCard", "cover", "urlDefault"),
			UserID:        str(item, "noteCard", "user", "userId"),
			UserName:      str(item, "noteCard", "user", "nickName"),
			UserXsecToken: str(item, "noteCard", "user", "xsecToken"),
		})
	}
	f.noteIndex = len(posts)
	return posts, nil
}

// More 再拉 n 条
func (f *Feed) More(ctx context.Context, n int) ([]Post, error) {
	if f.started.IsZero() || f.noteIndex == 0 {
		return nil, ErrNotInitialized
	}
	payload := homefeedPayload{
		Category:     "homefeed_recommend",
		CursorScore:  f.cursorScore,
		ImageFormats: imageFormats,
		NeedNum:      n - 25,
		NoteIndex:    f.noteIndex,
		Num:          n,
		RefreshType:  f.refreshType,
	}
	var data struct {
		CursorScore string    `json:"cursor_score"`
		Items       []apiNote `json:"items"`
	}
	if err := f.c.postSigned(ctx, homefeedPath, payload, f.started, &data); err != nil {
		return nil, fmt.Errorf("homefeed: %w", err)
	}
	f.refreshType = 3
	f.noteIndex += n
	f.cursorScore = data.CursorScore

	posts := make([]Post, 0, len(data.Items))
	for _, it := range data.Items {
		posts = append(posts, it.post())
	}
	return posts, nil
}
