package seeder

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

const userAgent = "MScAC-Chatbot-Indexer/1.0"

var ErrNoContent = errors.New("no content extracted from page")

// Page is one source page of the index
type Page struct {
	Title    string
	URL      string
	Selector string // main content container; defaults to "body"
}

// Document is the cleaned text of a crawled page
type Document struct {
	Page    Page
	Content string
}

type CrawlerConfig struct {
	Delay   time.Duration
	Timeout time.Duration
}

// Crawler fetches pages one at a time with colly and extracts their
// readable text with goquery.
type Crawler struct {
	cfg       CrawlerConfig
	processor *ContentProcessor
	logger    *logrus.Logger
}

func NewCrawler(cfg CrawlerConfig, processor *ContentProcessor, logger *logrus.Logger) *Crawler {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Crawler{cfg: cfg, processor: processor, logger: logger}
}

// Crawl fetches every page in order. Pages that fail are logged and
// skipped; an error is returned only if nothing could be crawled.
func (c *Crawler) Crawl(ctx context.Context, pages []Page) ([]Document, error) {
	var docs []Document
	var errs []error

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return docs, err
		}

		c.logger.WithFields(logrus.Fields{
			"page":     page.Title,
			"progress": fmt.Sprintf("%d/%d", i+1, len(pages)),
		}).Info("Processing page")

		content, err := c.Fetch(page)
		if err != nil {
			c.logger.WithError(err).WithField("page", page.Title).Error("Failed to process page")
			errs = append(errs, fmt.Errorf("failed to process %s: %w", page.Title, err))
			continue
		}
		docs = append(docs, Document{Page: page, Content: content})

		if c.cfg.Delay > 0 && i < len(pages)-1 {
			select {
			case <-ctx.Done():
				return docs, ctx.Err()
			case <-time.After(c.cfg.Delay):
			}
		}
	}

	c.logger.WithFields(logrus.Fields{
		"processed": len(docs),
		"errors":    len(errs),
	}).Info("Crawl completed")

	if len(docs) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return docs, nil
}

// Fetch downloads one page and returns its cleaned text
func (c *Crawler) Fetch(page Page) (string, error) {
	u, err := url.Parse(page.URL)
	if err != nil {
		return "", fmt.Errorf("invalid page url: %w", err)
	}

	selector := page.Selector
	if selector == "" {
		selector = "body"
	}

	// A new collector per page avoids colly's visited-URL state.
	collector := colly.NewCollector(colly.UserAgent(userAgent))
	collector.SetRequestTimeout(c.cfg.Timeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  u.Hostname(),
		Parallelism: 1,
	}); err != nil {
		return "", err
	}

	var content string
	var processingError error

	collector.OnHTML(selector, func(e *colly.HTMLElement) {
		if content != "" {
			return
		}
		content = c.processor.CleanContent(extractText(e.DOM))
	})

	collector.OnError(func(r *colly.Response, err error) {
		processingError = err
	})

	if err := collector.Visit(page.URL); err != nil {
		return "", fmt.Errorf("failed to visit page: %w", err)
	}
	collector.Wait()

	if processingError != nil {
		return "", fmt.Errorf("processing error: %w", processingError)
	}
	if content == "" {
		return "", ErrNoContent
	}

	c.logger.WithFields(logrus.Fields{
		"page":           page.Title,
		"content_length": len(content),
		"words":          c.processor.CountWords(content),
	}).Debug("Content extracted")

	return content, nil
}

// extractText drops page chrome and returns block-level text separated by
// blank lines.
func extractText(sel *goquery.Selection) string {
	sel.Find("script, style, noscript, nav, header, footer, form, iframe, svg").Remove()
	sel.Find(".sr-only, .visually-hidden, .breadcrumb, .menu").Remove()

	var b strings.Builder
	sel.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, dt, dd").Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are visited on their own.
		if s.Find("p, li").Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if goquery.NodeName(s) == "li" {
			text = "- " + text
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	})

	if b.Len() == 0 {
		return sel.Text()
	}
	return b.String()
}
