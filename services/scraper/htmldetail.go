package scraper

import (
	"bytes"
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sourcegraph/conc/pool"

	"streamscout/internal/fetch"
)

const (
	detailBatchSize  = 5
	detailBatchDelay = 300 * time.Millisecond
)

// detailPage pairs a listing row with its fetched detail document.
type detailPage struct {
	URL string
	Doc *goquery.Document
}

// fetchDetailPages fetches detail pages in parallel batches of
// detailBatchSize with a small inter-batch delay, returning whichever pages
// parsed. Per-page failures are logged and skipped.
func fetchDetailPages(ctx context.Context, client *fetch.Client, name string, urls []string) []detailPage {
	var pages []detailPage
	for offset := 0; offset < len(urls); offset += detailBatchSize {
		if ctx.Err() != nil {
			break
		}
		end := offset + detailBatchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[offset:end]

		p := pool.NewWithResults[*detailPage]().WithContext(ctx)
		for _, pageURL := range batch {
			pageURL := pageURL
			p.Go(func(ctx context.Context) (*detailPage, error) {
				resp, err := client.Get(ctx, pageURL, nil)
				if err != nil {
					log.Printf("[%s] detail fetch %s failed: %v", name, pageURL, err)
					return nil, nil
				}
				body, err := fetch.ReadBody(resp, 4<<20)
				if err != nil {
					return nil, nil
				}
				doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
				if err != nil {
					log.Printf("[%s] detail parse %s failed: %v", name, pageURL, err)
					return nil, nil
				}
				return &detailPage{URL: pageURL, Doc: doc}, nil
			})
		}
		results, _ := p.Wait()
		for _, page := range results {
			if page != nil {
				pages = append(pages, *page)
			}
		}

		if end < len(urls) {
			select {
			case <-ctx.Done():
				return pages
			case <-time.After(detailBatchDelay):
			}
		}
	}
	return pages
}

// jitter sleeps a random duration in [min, max), respecting cancelation.
// Anti-bot hosts flag fixed-cadence clients.
func jitter(ctx context.Context, min, max time.Duration) {
	d := min + time.Duration(rand.Int63n(int64(max-min)))
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
