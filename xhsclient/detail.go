package xhsclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// NoteDetail 笔记详情页上能直接拿到的信息
type NoteDetail struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	Labels      []string `json:"labels"`
}

// GetDetail 打开笔记详情页并解析
func (c *Client) GetDetail(ctx context.Context, id, xsecToken string) (*NoteDetail, error) {
	pageURL := c.webBase + "/explore/" + url.PathEscape(id) + "?xsec_token=" + url.QueryEscape(xsecToken)
	page, err := c.getPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return ParseDetail(page)
}

// ParseDetail 从详情页 HTML 中取 og:image / description / keywords / #detail-title
func ParseDetail(page string) (*NoteDetail, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse detail: %w", err)
	}
	d := &NoteDetail{Images: []string{}, Labels: []string{}}
	var titleFound, descFound, keywordsFound bool
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}
		switch n.Data {
		case "meta":
			content := attr(n, "content")
			switch attr(n, "name") {
			case "og:image":
				d.Images = append(d.Images, content)
			case "description":
				if !descFound {
					d.Description, descFound = content, true
				}
			case "keywords":
				if !keywordsFound {
					keywordsFound = true
					for _, s := range strings.Split(content, ",") {
						if s = strings.TrimSpace(s); s != "" {
							d.Labels = append(d.Labels, s)
						}
					}
				}
			}
		case "div":
			if !titleFound && attr(n, "id") == "detail-title" {
				d.Title, titleFound = textOf(n), true
			}
		}
	}
	return d, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	for c := range n.Descendants() {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
