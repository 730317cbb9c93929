package scraper

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"streamscout/internal/fetch"
	"streamscout/models"
	"streamscout/utils/filter"
)

// Torznab queries any torznab-compatible indexer: Jackett's aggregate
// endpoint, Bitmagnet, or StremThru's torznab surface. The flavor only
// changes how the API URL is derived from the configured base.
type Torznab struct {
	name    string
	flavor  string // "jackett", "bitmagnet", "stremthru"
	baseURL string
	apiKey  string
	client  *fetch.Client
}

func NewTorznab(client *fetch.Client, flavor, baseURL, apiKey, name string) *Torznab {
	return &Torznab{
		name:    strings.TrimSpace(name),
		flavor:  strings.ToLower(strings.TrimSpace(flavor)),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (t *Torznab) Name() string {
	if t.name != "" {
		return t.name
	}
	if t.flavor != "" {
		return t.flavor
	}
	return "torznab"
}

func (t *Torznab) apiURL() string {
	if t.flavor == "jackett" && !strings.Contains(t.baseURL, "/torznab") {
		return t.baseURL + "/api/v2.0/indexers/all/results/torznab/api"
	}
	return t.baseURL
}

type torznabRSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []torznabItem `xml:"item"`
	} `xml:"channel"`
}

type torznabItem struct {
	Title     string `xml:"title"`
	GUID      string `xml:"guid"`
	Link      string `xml:"link"`
	Size      int64  `xml:"size"`
	Enclosure struct {
		URL    string `xml:"url,attr"`
		Length int64  `xml:"length,attr"`
	} `xml:"enclosure"`
	Attrs []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	} `xml:"attr"`
}

func (t *Torznab) Search(ctx context.Context, req SearchRequest) ([]models.Candidate, error) {
	start := time.Now()
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}

	params := url.Values{}
	if t.apiKey != "" {
		params.Set("apikey", t.apiKey)
	}
	switch {
	case req.MediaType == "series" && req.Season > 0 && req.Episode > 0:
		params.Set("t", "tvsearch")
		params.Set("q", req.Title)
		params.Set("season", strconv.Itoa(req.Season))
		params.Set("ep", strconv.Itoa(req.Episode))
	case req.MediaType == "movie":
		params.Set("t", "movie")
		query := req.Title
		if req.Year > 0 {
			query = fmt.Sprintf("%s %d", req.Title, req.Year)
		}
		params.Set("q", query)
	default:
		params.Set("t", "search")
		params.Set("q", req.Query)
	}

	items, err := t.fetchItems(ctx, params)
	if err != nil || len(items) == 0 {
		// Some indexers reject the typed search verbs; fall back to the
		// plain keyword query before giving up.
		if params.Get("t") != "search" {
			params.Set("t", "search")
			params.Del("season")
			params.Del("ep")
			if req.Query != "" {
				params.Set("q", req.Query)
			}
			if fallback, ferr := t.fetchItems(ctx, params); ferr == nil {
				items, err = fallback, nil
			}
		}
		if err != nil {
			markTiming(req.LogContext, t.Name(), 0, start)
			return nil, err
		}
	}

	candidates := make([]models.Candidate, 0, len(items))
	for _, item := range items {
		attrs := make(map[string]string, len(item.Attrs))
		for _, a := range item.Attrs {
			attrs[a.Name] = a.Value
		}

		infoHash := normalizeHash(attrs["infohash"])
		if infoHash == "" {
			infoHash = hashFromMagnet(item.Link)
		}
		if infoHash == "" {
			infoHash = hashFromMagnet(item.GUID)
		}

		magnet := ""
		if strings.HasPrefix(item.Link, "magnet:") {
			magnet = item.Link
		} else if infoHash != "" {
			magnet = buildMagnet(infoHash, item.Title, nil)
		}
		if infoHash == "" {
			log.Printf("[%s] skipping %q: no info hash", t.Name(), item.Title)
			continue
		}

		size := item.Size
		if size == 0 && item.Enclosure.Length > 0 {
			size = item.Enclosure.Length
		}
		if size == 0 {
			size, _ = strconv.ParseInt(attrs["size"], 10, 64)
		}
		seeders, _ := strconv.Atoi(attrs["seeders"])

		tracker := attrs["tracker"]
		if tracker == "" {
			tracker = attrs["jackettindexer"]
		}
		if tracker != "" {
			tracker = t.Name() + " | " + tracker
		} else {
			tracker = t.Name()
		}

		candidates = append(candidates, models.NewTorrentCandidate(models.TorrentCandidate{
			Title:      item.Title,
			InfoHash:   infoHash,
			SizeBytes:  size,
			Seeders:    seeders,
			Tracker:    tracker,
			Languages:  filter.DetectLanguages(item.Title),
			Magnet:     magnet,
			Quality:    models.QualityFromTitle(item.Title),
			Attributes: map[string]string{"scraper": t.flavorOrDefault()},
		}))
	}

	out := postProcess(candidates, req)
	markTiming(req.LogContext, t.Name(), len(out), start)
	return out, nil
}

// TestConnection probes the indexer's caps endpoint, used by settings
// validation before a scraper is enabled.
func (t *Torznab) TestConnection(ctx context.Context) error {
	params := url.Values{}
	params.Set("t", "caps")
	if t.apiKey != "" {
		params.Set("apikey", t.apiKey)
	}
	resp, err := t.client.Get(ctx, t.apiURL()+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("torznab caps: %w", err)
	}
	defer fetch.Discard(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("torznab caps returned %d", resp.StatusCode)
	}
	return nil
}

func (t *Torznab) fetchItems(ctx context.Context, params url.Values) ([]torznabItem, error) {
	resp, err := t.client.Get(ctx, t.apiURL()+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("torznab request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fetch.Discard(resp)
		return nil, fmt.Errorf("torznab returned %d", resp.StatusCode)
	}
	body, err := fetch.ReadBody(resp, 16<<20)
	if err != nil {
		return nil, err
	}
	var rss torznabRSS
	if err := xml.Unmarshal(body, &rss); err != nil {
		return nil, fmt.Errorf("parse torznab xml: %w", err)
	}
	return rss.Channel.Items, nil
}

func (t *Torznab) flavorOrDefault() string {
	if t.flavor != "" {
		return t.flavor
	}
	return "torznab"
}
