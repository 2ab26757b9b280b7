package registry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/casetrack/docketwatch/constants"
)

// ParseAttachmentsHTML extracts document descriptors from a scraped
// attachment-listing fragment. Court systems vary, but the scrapers
// hand over fragments where each retrievable document is an <a href>;
// ids ride in data attributes or the href itself.
func ParseAttachmentsHTML(fragment string) ([]DocumentRef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("parse attachment html: %w", err)
	}

	var refs []DocumentRef
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(i int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}

		id := sourceDocID(a, href)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		title := strings.TrimSpace(a.Text())
		if title == "" {
			title, _ = a.Attr("title")
			title = strings.TrimSpace(title)
		}

		refs = append(refs, DocumentRef{
			SourceDocID: id,
			Title:       title,
			DocType:     docType(a, len(refs)),
			URL:         href,
		})
	})
	return refs, nil
}

// sourceDocID recovers the court-assigned document id: a data
// attribute when present, else a recognizable query parameter, else
// the last path segment of the link.
func sourceDocID(a *goquery.Selection, href string) string {
	for _, attr := range []string{"data-doc-id", "data-document-id"} {
		if v, ok := a.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, param := range []string{"doc_id", "docid", "documentId", "de_seq_num"} {
		if v := q.Get(param); v != "" {
			return v
		}
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if last := segs[len(segs)-1]; last != "" {
		return last
	}
	return ""
}

// docType reads an explicit type tag off the anchor or its row; absent
// one, the first document of an entry is the docket filing and the
// rest are attachments.
func docType(a *goquery.Selection, index int) constants.DocType {
	hint, _ := a.Attr("data-doc-type")
	if hint == "" {
		hint, _ = a.Closest("tr, li").Attr("class")
	}
	switch {
	case strings.Contains(strings.ToLower(hint), "attach"):
		return constants.DocTypeAttachment
	case strings.Contains(strings.ToLower(hint), "docket"),
		strings.Contains(strings.ToLower(hint), "main"):
		return constants.DocTypeDocket
	case index == 0:
		return constants.DocTypeDocket
	default:
		return constants.DocTypeAttachment
	}
}
