package newsie

import "github.com/matthewjhunter/newsie/internal/storage"

func imageFromStorage(img storage.Image) *Image {
	if img == (storage.Image{}) {
		return nil
	}
	return &Image{URL: img.URL, Title: img.Title, Link: img.Link}
}

func feedFromStorage(f storage.Feed) Feed {
	return Feed{
		ID:           f.ID,
		URL:          f.URL,
		Name:         f.Name,
		Title:        f.Title,
		Description:  f.Description,
		SiteLink:     f.SiteLink,
		Image:        imageFromStorage(f.Image),
		ETag:         f.ETag,
		LastModified: f.LastModified,
		LastFetched:  f.LastFetched,
		CreatedAt:    f.CreatedAt,
	}
}

func feedsFromStorage(rows []storage.Feed) []Feed {
	out := make([]Feed, 0, len(rows))
	for _, f := range rows {
		out = append(out, feedFromStorage(f))
	}
	return out
}

func articleFromStorage(a storage.Article) Article {
	return Article{
		ID:          a.ID,
		FeedID:      a.FeedID,
		GUID:        a.GUID,
		Link:        a.Link,
		Title:       a.Title,
		Author:      a.Author,
		Description: a.Description,
		Content:     a.Content,
		Image:       imageFromStorage(a.Image),
		PublishedAt: a.PublishedAt,
		FetchedAt:   a.FetchedAt,
	}
}

func articlesFromStorage(rows []storage.Article) []Article {
	out := make([]Article, 0, len(rows))
	for _, a := range rows {
		out = append(out, articleFromStorage(a))
	}
	return out
}
